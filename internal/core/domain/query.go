package domain

import (
	"encoding/json"
	"time"
)

type Intent string

const (
	IntentInformationRetrieval Intent = "information_retrieval"
	IntentCountQuery           Intent = "count_query"
	IntentComparison           Intent = "comparison"
	IntentTimeline             Intent = "timeline"
	IntentSummary              Intent = "summary"
)

type DataSource string

const (
	DataSourceVector     DataSource = "vector"
	DataSourceStructured DataSource = "structured"
)

// DefaultDataSources is the source selection used whenever the parser cannot decide.
func DefaultDataSources() []DataSource {
	return []DataSource{DataSourceVector, DataSourceStructured}
}

type ParsedQuery struct {
	OriginalQuery string       `json:"original_query"`
	Intent        Intent       `json:"intent"`
	Entities      []string     `json:"entities"`
	SearchQueries []string     `json:"search_queries"`
	DataSources   []DataSource `json:"data_sources"`
}

func (p ParsedQuery) Uses(source DataSource) bool {
	for _, s := range p.DataSources {
		if s == source {
			return true
		}
	}
	return false
}

// FallbackParsedQuery queries every source class with the verbatim question.
func FallbackParsedQuery(question string) ParsedQuery {
	return ParsedQuery{
		OriginalQuery: question,
		Intent:        IntentInformationRetrieval,
		Entities:      []string{},
		SearchQueries: []string{question},
		DataSources:   DefaultDataSources(),
	}
}

type StructuredResult struct {
	RecordID       string    `json:"recordID"`
	QueryText      string    `json:"queryText"`
	Status         string    `json:"status"`
	Summary        *string   `json:"summary,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	RelevanceScore float64   `json:"relevanceScore"`
}

type VectorHit struct {
	URL        string            `json:"url"`
	Content    string            `json:"content"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type SourceReference struct {
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Snippet        string     `json:"snippet"`
	SourceType     DataSource `json:"sourceType"`
	RelevanceScore float64    `json:"relevanceScore"`
}

type QueryResult struct {
	Answer  string            `json:"answer"`
	Sources []SourceReference `json:"sources"`
	Query   string            `json:"query"`
}

type QueryRequest struct {
	Question string `json:"question"`
	ScopeID  string `json:"scopeID,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	// SimilarityThreshold is the minimum vector similarity in [0, 1]; nil uses the engine default.
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`
}

const JobStatusCompleted = "completed"

// ResearchJob is a record of the structured store. Result holds the job's raw result document.
type ResearchJob struct {
	ID        string
	Query     string
	Status    string
	Result    json.RawMessage
	CreatedAt time.Time
}
