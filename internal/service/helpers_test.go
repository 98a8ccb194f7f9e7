package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/authcore/internal/audit"
	"github.com/Skotchmaster/authcore/internal/hash"
	"github.com/Skotchmaster/authcore/internal/mykafka"
	"github.com/Skotchmaster/authcore/internal/repo"
	"github.com/Skotchmaster/authcore/internal/testdb"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Record(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []mykafka.UserEvent
}

func (p *recordingPublisher) PublishUserEvent(_ context.Context, e mykafka.UserEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	repo   *repo.GormRepo
	auth   *AuthService
	tokens *TokenService
	audit  *recordingAudit
	events *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	r := repo.New(testdb.New(t))
	hasher := hash.Hasher{Cost: bcrypt.MinCost}
	verifier, err := NewCredentialVerifier(r, hasher)
	require.NoError(t, err)

	rec := &recordingAudit{}
	pub := &recordingPublisher{}
	return &fixture{
		repo: r,
		auth: &AuthService{
			Users:    r,
			Verifier: verifier,
			Hasher:   hasher,
			Events:   pub,
			Audit:    rec,
		},
		tokens: &TokenService{
			Users:         r,
			Refresh:       r,
			JWTSecret:     []byte("test-jwt-secret"),
			RefreshSecret: []byte("test-refresh-secret"),
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    time.Hour,
			Audit:         rec,
		},
		audit:  rec,
		events: pub,
	}
}
