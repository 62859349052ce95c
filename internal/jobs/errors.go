package jobs

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrJobTerminal           = errors.New("job already terminal")
	ErrJobQueueNotConfigured = errors.New("job queue not configured")
)

const (
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeLLMTimeout = "LLM_TIMEOUT"
	ErrorCodeLLMSchema  = "LLM_SCHEMA_MISMATCH"
	ErrorCodeStorage    = "STORAGE_ERROR"
	ErrorCodeEventLog   = "EVENT_LOG_ERROR"
	ErrorCodeInternal   = "INTERNAL_ERROR"
)
