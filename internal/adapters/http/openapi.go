package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openAPIDocument []byte

type apiContract struct {
	document     []byte
	queryRequest *openapi3.Schema
}

func loadAPIContract() (*apiContract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}

	ref, ok := doc.Components.Schemas["QueryRequest"]
	if !ok || ref.Value == nil {
		return nil, fmt.Errorf("openapi document has no QueryRequest schema")
	}

	rendered, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render openapi document: %w", err)
	}
	return &apiContract{document: rendered, queryRequest: ref.Value}, nil
}

// validateQueryRequest checks a decoded JSON body against the QueryRequest schema.
func (c *apiContract) validateQueryRequest(body any) error {
	return c.queryRequest.VisitJSON(body)
}
