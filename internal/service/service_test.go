package service

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/memstore"
	"github.com/iliyamo/address-book/internal/model"
	q "github.com/iliyamo/address-book/internal/queue"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []q.EntryEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev q.EntryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Action
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixture struct {
	store  *memstore.Store
	events *recordingPublisher
	caller model.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memstore.New(bcrypt.MinCost)
	id, err := st.Users.Create(context.Background(), "editor", "password1", model.RoleEditor)
	require.NoError(t, err)
	u, err := st.Users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return fixture{store: st, events: &recordingPublisher{}, caller: u}
}

func str(s string) *string { return &s }

func validInput(name string) EntryInput {
	return EntryInput{
		Name:         str(name),
		AddressLine1: str("Main St 1"),
		Zipcode:      str("1000"),
		City:         str("Copenhagen"),
		Telephone:    str("+45 1234 5678"),
		Email:        str(" Someone@Example.COM "),
	}
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %T: %v", err, err)
	require.Equal(t, kind, ae.Kind, ae.Message)
	return ae
}
