package domain

import "time"

// DownstreamRequest describes one authenticated call to the downstream
// API. Transient value object, never persisted.
type DownstreamRequest struct {
	Method string
	URL    string
	// Body is the already-marshalled JSON payload, nil for bodyless verbs.
	Body []byte
	// Params are appended to the URL as query parameters.
	Params map[string]string
	// Headers are merged on top of the gateway's fixed header set.
	Headers map[string]string
}

// DownstreamResponse is the gateway's structured result: the upstream
// status, the decoded JSON body and the wall time the call took. Data
// holds whatever JSON shape the downstream returned (objects for single
// resources, arrays for list endpoints); 204 and empty replies decode to
// an empty map.
type DownstreamResponse struct {
	StatusCode int           `json:"status"`
	Data       any           `json:"data"`
	Elapsed    time.Duration `json:"-"`
}
