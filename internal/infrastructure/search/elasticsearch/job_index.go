package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
)

type Config struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// JobIndex serves completed research jobs from an Elasticsearch index.
// Documents carry job_id, query, status, result and created_at.
type JobIndex struct {
	client *es.Client
	index  string
}

func NewJobIndex(cfg Config) (*JobIndex, error) {
	esCfg := es.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	client, err := es.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	index := strings.TrimSpace(cfg.Index)
	if index == "" {
		index = "research_jobs"
	}
	return &JobIndex{client: client, index: index}, nil
}

func (j *JobIndex) Ping(ctx context.Context) error {
	res, err := j.client.Ping(j.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping status: %s", res.Status())
	}
	return nil
}

// FindCompleted returns completed jobs matching any keyword, newest first.
func (j *JobIndex) FindCompleted(ctx context.Context, keywords []string, limit int) ([]domain.ResearchJob, error) {
	if len(keywords) == 0 || limit <= 0 {
		return []domain.ResearchJob{}, nil
	}

	should := make([]map[string]any, 0, len(keywords))
	for _, keyword := range keywords {
		should = append(should, map[string]any{
			"match": map[string]any{"query": keyword},
		})
	}
	queryBody := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"status": domain.JobStatusCompleted}},
				},
				"should":               should,
				"minimum_should_match": 1,
			},
		},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc"}},
		},
		"size": limit,
	}

	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}
	req := esapi.SearchRequest{
		Index: []string{j.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, j.client)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search status: %s", res.String())
	}

	var searchResp struct {
		Hits struct {
			Hits []struct {
				ID     string    `json:"_id"`
				Source jobSource `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.ResearchJob, 0, len(searchResp.Hits.Hits))
	for _, hit := range searchResp.Hits.Hits {
		src := hit.Source
		id := src.JobID
		if id == "" {
			id = hit.ID
		}
		var result json.RawMessage
		if len(src.Result) > 0 && string(src.Result) != "null" {
			result = src.Result
		}
		out = append(out, domain.ResearchJob{
			ID:        id,
			Query:     src.Query,
			Status:    src.Status,
			Result:    result,
			CreatedAt: src.CreatedAt,
		})
	}
	return out, nil
}

type jobSource struct {
	JobID     string          `json:"job_id"`
	Query     string          `json:"query"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}
