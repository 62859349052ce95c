package queue

import "context"

// Client hands analysis-job dispatch messages to the worker process.
// A nil Client means no queue is configured and jobs run inline.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
