// Package audit records security-relevant authentication events (failed
// logins, forged tokens, refresh-token reuse) in an Elasticsearch index.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
)

const (
	EventLoginFailed           = "login_failed"
	EventTokenSignatureInvalid = "token_signature_invalid"
	EventRefreshReuse          = "refresh_token_reuse"

	DefaultIndex  = "auth_audit"
	recordTimeout = 2 * time.Second
	queueSize     = 256
)

type Event struct {
	Type   string    `json:"type"`
	UserID string    `json:"user_id,omitempty"`
	Email  string    `json:"email,omitempty"`
	IP     string    `json:"ip,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"@timestamp"`
}

// Recorder never fails or blocks the caller; delivery problems are logged.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

type Nop struct{}

func (Nop) Record(context.Context, Event) {}
func (Nop) Close() error                  { return nil }

func NewClient(url, user, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return client, nil
}

// Ping checks that the cluster answers.
func Ping(ctx context.Context, client *elasticsearch.Client) error {
	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch error response: %s: %s", res.Status(), body)
	}
	return nil
}

// ESRecorder indexes events from a single background worker. Record only
// enqueues; when the queue is full the event is dropped and logged.
type ESRecorder struct {
	client *elasticsearch.Client
	index  string
	log    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func NewESRecorder(client *elasticsearch.Client, index string, log *slog.Logger) *ESRecorder {
	if index == "" {
		index = DefaultIndex
	}
	r := &ESRecorder{
		client: client,
		index:  index,
		log:    log,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *ESRecorder) Record(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.log.Warn("audit_dropped", "audit_event", e.Type, "reason", "recorder closed")
		return
	}
	select {
	case r.queue <- e:
	default:
		r.log.Warn("audit_dropped", "audit_event", e.Type, "reason", "queue full")
	}
}

// Close stops accepting events and waits until the queued ones are indexed.
func (r *ESRecorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *ESRecorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.write(e)
	}
}

func (r *ESRecorder) write(e Event) {
	l := r.log.With("audit_event", e.Type, "index", r.index)

	data, err := json.Marshal(e)
	if err != nil {
		l.Error("audit_marshal_failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	res, err := r.client.Index(r.index, bytes.NewReader(data), r.client.Index.WithContext(ctx))
	if err != nil {
		l.Warn("audit_index_failed", "error", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		l.Warn("audit_index_failed", "status", res.StatusCode)
	}
}
