package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/infrastructure/resilience"
)

// QueryClient implements ports.QueryService by asking a remote QueryServer.
type QueryClient struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func NewQueryClient(conn *nats.Conn, subject string, executor *resilience.Executor) *QueryClient {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultQuerySubject
	}
	return &QueryClient{conn: conn, subject: subject, executor: executor}
}

func (c *QueryClient) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode query request: %w", err)
	}

	var reply *nats.Msg
	call := func(callCtx context.Context) error {
		msg, err := c.conn.RequestWithContext(callCtx, c.subject, payload)
		if err != nil {
			return fmt.Errorf("nats request: %w", err)
		}
		reply = msg
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "nats.request", call, classifyRequestError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if classifyRequestError(err).Retryable || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.WrapError(domain.ErrTemporary, "nats request", err)
		}
		return nil, err
	}
	return decodeQueryReply(reply.Data)
}

// classifyRequestError retries when no worker answered in time or the connection is down.
func classifyRequestError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, resilience.ErrAttemptTimeout):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func decodeQueryReply(data []byte) (*domain.QueryResult, error) {
	var envelope struct {
		domain.QueryResult
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode query reply: %w", err)
	}
	if envelope.Error != "" {
		remote := errors.New(envelope.Error)
		switch envelope.Code {
		case codeInvalidInput:
			return nil, domain.WrapError(domain.ErrInvalidInput, "remote query", remote)
		case codeTemporary:
			return nil, domain.WrapError(domain.ErrTemporary, "remote query", remote)
		default:
			return nil, fmt.Errorf("remote query: %w", remote)
		}
	}
	result := envelope.QueryResult
	if result.Sources == nil {
		result.Sources = []domain.SourceReference{}
	}
	return &result, nil
}
