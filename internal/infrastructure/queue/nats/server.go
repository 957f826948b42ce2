package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/research-query-engine/internal/core/domain"
	"github.com/kirillkom/research-query-engine/internal/core/ports"
)

const (
	DefaultQuerySubject = "research.query"
	DefaultQueueGroup   = "query-engine"
	DefaultDrainTimeout = 30 * time.Second
)

// Observer receives per-message outcomes; metrics.WorkerMetrics satisfies it.
type Observer interface {
	StartQuery()
	FinishQuery(service string, duration time.Duration, err error)
}

type ServerOptions struct {
	Subject     string
	QueueGroup  string
	Service     string
	Concurrency int
	// QueryTimeout bounds each message; shutdown does not cancel queries already accepted.
	QueryTimeout time.Duration
	// DrainTimeout bounds how long Serve waits for pending messages after ctx is done.
	DrainTimeout time.Duration
	Observer     Observer
}

// QueryServer answers QueryRequest messages with QueryResult replies.
type QueryServer struct {
	conn         *nats.Conn
	subject      string
	group        string
	service      string
	concurrency  int
	queryTimeout time.Duration
	drainTimeout time.Duration
	observer     Observer
}

func NewQueryServer(conn *nats.Conn, options ServerOptions) *QueryServer {
	subject := strings.TrimSpace(options.Subject)
	if subject == "" {
		subject = DefaultQuerySubject
	}
	group := strings.TrimSpace(options.QueueGroup)
	if group == "" {
		group = DefaultQueueGroup
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	drainTimeout := options.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	return &QueryServer{
		conn:         conn,
		subject:      subject,
		group:        group,
		service:      options.Service,
		concurrency:  concurrency,
		queryTimeout: options.QueryTimeout,
		drainTimeout: drainTimeout,
		observer:     options.Observer,
	}
}

// Serve blocks until ctx is done, then drains the subscription. Messages already
// delivered, including those pending at drain time, are answered before Serve returns.
func (s *QueryServer) Serve(ctx context.Context, queries ports.QueryService) error {
	if queries == nil {
		return fmt.Errorf("nats serve: query service is nil")
	}

	queryCtx := context.WithoutCancel(ctx)
	slots := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	sub, err := s.conn.QueueSubscribe(s.subject, s.group, func(msg *nats.Msg) {
		slots <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			s.handle(queryCtx, queries, msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("query_server_listening", "subject", s.subject, "queue_group", s.group)

	<-ctx.Done()
	slog.Info("query_server_draining", "subject", s.subject)
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	drained := waitDrained(sub, s.drainTimeout)
	wg.Wait()
	if !drained {
		return fmt.Errorf("nats drain subscription: not finished after %s", s.drainTimeout)
	}
	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// waitDrained reports whether the subscription closed within timeout.
func waitDrained(sub *nats.Subscription, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for sub.IsValid() {
		if time.Now().After(deadline) {
			return false
		}
		<-ticker.C
	}
	return true
}

func (s *QueryServer) handle(ctx context.Context, queries ports.QueryService, msg *nats.Msg) {
	start := time.Now()
	if s.observer != nil {
		s.observer.StartQuery()
	}

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	reply, err := handleQueryMessage(ctx, queries, msg.Data)

	if s.observer != nil {
		s.observer.FinishQuery(s.service, time.Since(start), err)
	}
	if err != nil {
		slog.Warn("query_message_failed", "subject", msg.Subject, "error", err)
	}
	if msg.Reply == "" {
		return
	}
	if respondErr := msg.Respond(reply); respondErr != nil {
		slog.Error("query_reply_failed", "subject", msg.Subject, "error", respondErr)
	}
}

type errorReply struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// handleQueryMessage always produces a reply body; the error is for logging and metrics.
func handleQueryMessage(ctx context.Context, queries ports.QueryService, data []byte) ([]byte, error) {
	var req domain.QueryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		err = domain.WrapError(domain.ErrInvalidInput, "decode query request", err)
		return encodeErrorReply(err), err
	}

	result, err := queries.Query(ctx, req)
	if err != nil {
		return encodeErrorReply(err), err
	}

	body, err := json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("encode query result: %w", err)
		return encodeErrorReply(err), err
	}
	return body, nil
}

func encodeErrorReply(err error) []byte {
	body, _ := json.Marshal(errorReply{
		Error: err.Error(),
		Code:  errorCode(err),
	})
	return body
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return codeInvalidInput
	case errors.Is(err, domain.ErrTemporary), errors.Is(err, domain.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return codeTemporary
	default:
		return codeInternal
	}
}

const (
	codeInvalidInput = "invalid_input"
	codeTemporary    = "temporary"
	codeInternal     = "internal"
)
