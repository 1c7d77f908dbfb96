package utils

import "time"

// APIResponse is the JSON envelope every handler writes, for successes and
// failures alike.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SuccessResponse wraps a payload in a success envelope stamped with the
// server time.
func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// ErrorResponse builds a failure envelope carrying a short message plus the
// underlying error detail.
func ErrorResponse(message, detail string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     detail,
		Timestamp: time.Now(),
	}
}
