package apiwatch

import (
	"context"
	"net/http"
)

// transport implements http.RoundTripper and records one unit of usage for
// every outgoing request that matches one of a user's resources. It never
// blocks or fails a request.
type transport struct {
	tracker *Tracker
	userID  string
	base    http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.tracker.Observe(req.Context(), t.userID, req.URL.String())
	return t.base.RoundTrip(req)
}

// Transport wraps an http.RoundTripper so that requests made through it are
// counted against the user's resources whose Pattern matches the URL.
func (t *Tracker) Transport(userID string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{tracker: t, userID: userID, base: base}
}

// Observe records one request against the first of the user's resources
// whose Pattern matches rawURL. It reports whether a resource matched.
// Errors are logged, not returned: observation is monitoring only.
func (t *Tracker) Observe(ctx context.Context, userID, rawURL string) bool {
	resources, err := t.store.ListResources(ctx, userID)
	if err != nil {
		t.logger.Warn("observe: listing resources failed", "user_id", userID, "error", err)
		return false
	}

	for _, r := range resources {
		if !matchURL(rawURL, r.Pattern) {
			continue
		}
		if _, err := t.RecordUsage(ctx, userID, r.ID, 1); err != nil {
			t.logger.Warn("observe: usage not recorded",
				"resource_id", r.ID,
				"url", rawURL,
				"error", err,
			)
		}
		return true
	}
	return false
}
