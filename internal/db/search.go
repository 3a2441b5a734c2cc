package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// Tags restrict the candidate set before KNN; each entry becomes an
	// exact @field:{value} pre-filter.
	Tags         map[string]string
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search.
type TextQuery struct {
	IndexName    string
	Query        string
	Tags         map[string]string
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
