// Package apilog records every outbound call to a delivery or payment
// collaborator so operators can see gateway latency and failures.
package apilog

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one outbound HTTP call.
type Entry struct {
	ID           uuid.UUID     `json:"id"`
	Endpoint     string        `json:"endpoint"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Failed reports whether the call errored or returned a non-2xx status.
func (e Entry) Failed() bool {
	return e.ErrorMessage != "" || e.StatusCode < 200 || e.StatusCode >= 300
}
