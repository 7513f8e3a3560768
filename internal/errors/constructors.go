package errors

// Convenience functions for common error patterns

// Input errors

func InvalidInput(message string) *PipelineError {
	return New(CategoryInvalidInput, SeverityWarning, message)
}

func InvalidPayload(field, reason string) *PipelineError {
	return New(CategoryInvalidInput, SeverityWarning, "invalid payload").
		WithContext("field", field).
		WithContext("reason", reason)
}

func NotFound(kind, id string) *PipelineError {
	return New(CategoryNotFound, SeverityWarning, kind+" not found").
		WithContext("id", id)
}

// Config errors

func ConfigRequired(field string) *PipelineError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

// Upstream errors

func Transient(message string, cause error) *PipelineError {
	return WrapRetryable(cause, CategoryTransient, SeverityWarning, message)
}

func UpstreamTimeout(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryTimeout, SeverityWarning, "deadline exceeded").
		WithContext("operation", operation)
}

func Quality(dimension string, cause error) *PipelineError {
	return Wrap(cause, CategoryQuality, SeverityWarning, "unusable model output").
		WithContext("dimension", dimension)
}

// Durability errors

func BackupFailed(operation string, cause error) *PipelineError {
	return Wrap(cause, CategoryFatal, SeverityFatal, "backup operation failed").
		WithContext("operation", operation)
}

func Cancelled(jobID string) *PipelineError {
	return New(CategoryCancelled, SeverityInfo, "job cancelled").
		WithContext("job_id", jobID)
}

// Internal errors

func Internal(message string, cause error) *PipelineError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
