package types

// Document is one indexed transcript chunk. ID is a content hash so the same
// chunk text always maps to the same identity.
type Document struct {
	ID       string   `json:"id" yaml:"id"`
	Content  string   `json:"content" yaml:"content"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
}

// Metadata is the fixed per-chunk schema. Every chunk cut from one source entry
// carries the same Source; ChunkNo is contiguous from 0 and StartAt is
// non-decreasing across chunks of the same source.
type Metadata struct {
	Video        string `json:"video,omitempty" yaml:"video,omitempty"`
	Source       string `json:"source" yaml:"source"`
	Title        string `json:"title" yaml:"title"`
	PubDate      string `json:"pub-date,omitempty" yaml:"pub-date,omitempty"`
	PubYear      string `json:"pub-year,omitempty" yaml:"pub-year,omitempty"`
	PubYearMonth string `json:"pub-year-month,omitempty" yaml:"pub-year-month,omitempty"`
	Topic        string `json:"topic,omitempty" yaml:"topic,omitempty"`
	StartAt      int    `json:"start-at" yaml:"start-at"`
	ChunkNo      int    `json:"chunk-no" yaml:"chunk-no"`
}

// Metadata filter keys accepted by the vector index and the removal API.
const (
	MetaVideoKey        = "video"
	MetaSourceKey       = "source"
	MetaTitleKey        = "title"
	MetaPubDateKey      = "pub-date"
	MetaPubYearKey      = "pub-year"
	MetaPubYearMonthKey = "pub-year-month"
	MetaTopicKey        = "topic"
	MetaStartAtKey      = "start-at"
	MetaChunkNoKey      = "chunk-no"
)

// MetadataFilterKeys lists the keys a retrieval filter may use.
func MetadataFilterKeys() []string {
	return []string{
		MetaVideoKey,
		MetaSourceKey,
		MetaTitleKey,
		MetaPubDateKey,
		MetaPubYearKey,
		MetaPubYearMonthKey,
		MetaTopicKey,
	}
}

// IsMetadataFilterKey reports whether key is a valid metadata filter field.
func IsMetadataFilterKey(key string) bool {
	for _, k := range MetadataFilterKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// ScoredDocument pairs a document with its similarity score from the index.
type ScoredDocument struct {
	Document Document `json:"document"`
	Score    float32  `json:"score"`
}

// IngestEntry is the on-disk ingestion record: a metadata map plus a content
// blob, usually a transcript.
type IngestEntry struct {
	Metadata Metadata `yaml:"metadata"`
	Content  string   `yaml:"content"`
}
