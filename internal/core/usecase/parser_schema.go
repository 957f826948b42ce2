package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const parsedQuerySchemaJSON = `{
  "type": "object",
  "required": ["intent", "entities", "search_queries", "data_sources"],
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["information_retrieval", "count_query", "comparison", "timeline", "summary"]
    },
    "entities": {
      "type": "array",
      "items": {"type": "string"}
    },
    "search_queries": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string"}
    },
    "data_sources": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "enum": ["vector", "structured"]}
    }
  }
}`

var parsedQuerySchema = mustCompileSchema(parsedQuerySchemaJSON)

type parserPayload struct {
	Intent        string   `json:"intent"`
	Entities      []string `json:"entities"`
	SearchQueries []string `json:"search_queries"`
	DataSources   []string `json:"data_sources"`
}

func mustCompileSchema(definition string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(definition))
	if err != nil {
		panic(fmt.Sprintf("compile json schema: %v", err))
	}
	return schema
}

// decodeParserPayload accepts only replies that validate against parsedQuerySchema.
func decodeParserPayload(raw string) (parserPayload, error) {
	body := extractJSONObject(stripCodeFence(raw))
	if body == "" {
		return parserPayload{}, fmt.Errorf("empty parser response")
	}

	result, err := parsedQuerySchema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return parserPayload{}, fmt.Errorf("decode parser json: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return parserPayload{}, fmt.Errorf("parser json failed schema: %s", strings.Join(problems, "; "))
	}

	var payload parserPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return parserPayload{}, fmt.Errorf("unmarshal parser json: %w", err)
	}
	return payload, nil
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if idx := strings.Index(raw, "\n"); idx >= 0 {
		raw = raw[idx+1:]
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}
