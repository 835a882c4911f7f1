package domain

// Similarity metrics supported by the vector index.
const (
	MetricCosine = "cosine"
)

// IndexSpec describes a vector index.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    string
}

// RecordMetadata is the payload stored next to each vector.
type RecordMetadata struct {
	Source   string
	Filename string
	Page     *int
	Text     string
}

// IndexRecord is the unit stored in and returned from the vector index.
// ID uniquely identifies a chunk; re-upserting an ID overwrites the record.
type IndexRecord struct {
	ID       string
	Vector   []float32
	Metadata RecordMetadata
}

// QueryFilter restricts a similarity query. Empty fields match everything.
type QueryFilter struct {
	Source string
}

// IndexMatch is a single similarity hit.
type IndexMatch struct {
	ID       string
	Score    float64 // higher is more similar
	Metadata RecordMetadata
}
