// internal/common/errors/handler.go
package errors

// Logger is the subset of the logging interface the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler logs per-item failures of background batches. There is no
// synchronous caller on those paths, so the structured log is the report.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleItemError normalizes err, logs it against the item and returns the
// normalized form so the caller can count it.
func (h *ErrorHandler) HandleItemError(operation, itemID string, err error) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := Normalize(err)
	if h == nil || h.logger == nil {
		return stdErr
	}
	fields := map[string]interface{}{
		"operation":     operation,
		"itemId":        itemID,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	h.logger.Error("item failed", fields)
	return stdErr
}
