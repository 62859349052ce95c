package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	jobsStartedTotal   atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsStoppedTotal   atomic.Uint64
	jobsFailedTotal    atomic.Uint64

	eventsAppendedTotal atomic.Uint64
	eventsPurgedTotal   atomic.Uint64
	streamsOpenedTotal  atomic.Uint64

	workerMessagesReceivedTotal atomic.Uint64
	workerMessagesDroppedTotal  atomic.Uint64

	jobDuration    = newHistogram([]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000, 1800000})
	llmCallDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncJobStarted increments the started counter.
func IncJobStarted() {
	jobsStartedTotal.Add(1)
}

// IncJobCompleted increments the completed counter.
func IncJobCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncJobStopped increments the stopped counter.
func IncJobStopped() {
	jobsStoppedTotal.Add(1)
}

// IncJobFailed increments the failed counter.
func IncJobFailed() {
	jobsFailedTotal.Add(1)
}

// IncEventAppended increments the appended-event counter.
func IncEventAppended() {
	eventsAppendedTotal.Add(1)
}

// AddEventsPurged records events removed by the retention sweep.
func AddEventsPurged(n int64) {
	if n <= 0 {
		return
	}
	eventsPurgedTotal.Add(uint64(n))
}

// IncStreamOpened increments the opened-stream counter.
func IncStreamOpened() {
	streamsOpenedTotal.Add(1)
}

// IncWorkerMessageReceived increments the queue-message-received counter.
func IncWorkerMessageReceived() {
	workerMessagesReceivedTotal.Add(1)
}

// IncWorkerMessageDropped counts messages deleted as unrecoverable.
func IncWorkerMessageDropped() {
	workerMessagesDroppedTotal.Add(1)
}

// ObserveJobDurationMs records a whole-job duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// ObserveLLMCallDurationMs records a single LLM call duration in milliseconds.
func ObserveLLMCallDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	llmCallDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_jobs_started_total", "Total analysis jobs started", jobsStartedTotal.Load())
	writeCounter(&buf, "analysis_jobs_completed_total", "Total analysis jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "analysis_jobs_stopped_total", "Total analysis jobs stopped by cancellation", jobsStoppedTotal.Load())
	writeCounter(&buf, "analysis_jobs_failed_total", "Total analysis jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "progress_events_appended_total", "Total progress events appended to the event log", eventsAppendedTotal.Load())
	writeCounter(&buf, "progress_events_purged_total", "Total progress events removed by retention", eventsPurgedTotal.Load())
	writeCounter(&buf, "event_streams_opened_total", "Total event streams opened", streamsOpenedTotal.Load())
	writeCounter(&buf, "worker_messages_received_total", "Total queue messages received by the worker", workerMessagesReceivedTotal.Load())
	writeCounter(&buf, "worker_messages_dropped_total", "Total queue messages deleted as unrecoverable", workerMessagesDroppedTotal.Load())
	writeHistogram(&buf, "analysis_job_duration_ms", "Analysis job duration in milliseconds", jobDuration.Snapshot())
	writeHistogram(&buf, "llm_call_duration_ms", "LLM call duration in milliseconds", llmCallDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
