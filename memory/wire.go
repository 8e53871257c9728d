package memory

// Wire types of the vector memory service. The service and RemoteStore share
// them so both sides agree on field names.

// Document is one entry to index.
type Document struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Context string `json:"context,omitempty"`
}

// IndexRequest is the body of POST /index.
type IndexRequest struct {
	Namespace string     `json:"namespace"`
	Documents []Document `json:"documents"`
}

// IndexResponse is the reply to POST /index.
type IndexResponse struct {
	Status  string `json:"status"`
	Count   int    `json:"count"`
	Message string `json:"message"`
}

// SearchRequest is the body of POST /search. Zero values take the service
// defaults (top_k 3, namespaces ["tools"], min_score 0.1).
type SearchRequest struct {
	Query      string   `json:"query"`
	TopK       int      `json:"top_k,omitempty"`
	Namespaces []string `json:"namespaces,omitempty"`
	MinScore   *float64 `json:"min_score,omitempty"`
}

// SearchResult is one hit.
type SearchResult struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
	Context   string  `json:"context"`
	Namespace string  `json:"namespace"`
}

// SearchResponse is the reply to POST /search.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// ClearRequest is the body of POST /clear.
type ClearRequest struct {
	Namespace string `json:"namespace"`
}

// HealthResponse is the reply to GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// StatusResponse is the reply to GET /status.
type StatusResponse struct {
	Status         string         `json:"status"`
	Model          string         `json:"model"`
	Namespaces     []string       `json:"namespaces"`
	DocumentCounts map[string]int `json:"document_counts"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
