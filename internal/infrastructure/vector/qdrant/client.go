package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/resilience"
)

// Client implements ports.VectorSearcher over the Qdrant REST API.
// Points are expected to carry url, content, job_id and metadata payload keys.
type Client struct {
	baseURL    string
	collection string
	embedder   ports.Embedder
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func New(baseURL, collection string, embedder ports.Embedder, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		c.executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return c
}

func (c *Client) SearchSimilar(
	ctx context.Context,
	queryText string,
	scopeID string,
	limit int,
	threshold float64,
) ([]domain.VectorHit, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("qdrant search: embedder is not configured")
	}
	vector, err := c.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector":          vector,
		"limit":           limit,
		"score_threshold": threshold,
		"with_payload":    true,
	}
	if scope := strings.TrimSpace(scopeID); scope != "" {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "job_id",
					"match": map[string]any{
						"value": scope,
					},
				},
			},
		}
	}

	var searchResp searchResponse
	err = c.executor.Execute(ctx, "qdrant.search", func(callCtx context.Context) error {
		return c.postSearch(callCtx, reqBody, &searchResp)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		if resilience.ClassifyHTTPError(err).Retryable {
			return nil, domain.WrapError(domain.ErrTemporary, "qdrant.search", err)
		}
		return nil, err
	}

	out := make([]domain.VectorHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		url := getStringPayload(r.Payload, "url")
		if url == "" {
			url = "qdrant://" + pointID(r.ID)
		}
		out = append(out, domain.VectorHit{
			URL:        url,
			Content:    getStringPayload(r.Payload, "content"),
			Similarity: r.Score,
			Metadata:   metadataPayload(r.Payload),
		})
	}
	return out, nil
}

type searchResponse struct {
	Result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload map[string]any  `json:"payload"`
	} `json:"result"`
}

func (c *Client) postSearch(ctx context.Context, reqBody map[string]any, out *searchResponse) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError("qdrant", "search", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// metadataPayload flattens the metadata object and keeps job_id alongside it.
func metadataPayload(payload map[string]any) map[string]string {
	out := map[string]string{}
	if raw, ok := payload["metadata"].(map[string]any); ok {
		for key, value := range raw {
			if value == nil {
				continue
			}
			if s, ok := value.(string); ok {
				out[key] = s
				continue
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				out[key] = fmt.Sprintf("%v", value)
				continue
			}
			out[key] = string(encoded)
		}
	}
	if jobID := getStringPayload(payload, "job_id"); jobID != "" {
		out["job_id"] = jobID
	}
	return out
}

// Point ids are either unsigned integers or UUID strings.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
