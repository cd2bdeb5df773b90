package testutil

import (
	"net/http"
	"time"

	id "github.com/agirails/actp-kernel-sub001/pkg/domain"
	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

// WithActor injects the calling party into the request context, simulating
// what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, actor id.PartyID) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithClock pins the request time, simulating the request-time middleware.
func WithClock(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// AsActor combines WithActor and WithClock, the usual state for an
// authenticated handler test.
func AsActor(req *http.Request, actor id.PartyID, now time.Time) *http.Request {
	return WithClock(WithActor(req, actor), now)
}
