package testutil

import (
	"net/http"

	id "billtrack/pkg/domain"
	"billtrack/pkg/requestcontext"
)

// WithActor simulates the auth middleware for an authenticated request.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithRequestID tags req the way the request ID middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
