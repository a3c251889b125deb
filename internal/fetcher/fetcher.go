package fetcher

import "context"

// Getter is the interface the upstream API clients depend on.
// Implementations issue a GET against path (relative to their base URL),
// decode the JSON body into out, and apply their own retry policy.
type Getter interface {
	// GetJSON retrieves path with the given query parameters and decodes
	// the response body into out.
	// Returns an *ExhaustedError once the retry budget is spent.
	GetJSON(ctx context.Context, path string, query map[string]string, out any) error
}
