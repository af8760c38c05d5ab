package sessions_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/ggoodman/shiprocket-mcp-go/sessions"
	"github.com/ggoodman/shiprocket-mcp-go/sessions/sessiontest"
)

func TestManagerConformance(t *testing.T) {
	sessiontest.RunTransportTests(t, func(t *testing.T) sessions.Transport {
		return sessions.NewManager()
	})
}

func TestOpenWithIDDuplicateIsReported(t *testing.T) {
	var buf bytes.Buffer
	m := sessions.NewManager(sessions.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	ctx := context.Background()

	first := sessiontest.NewRecordingStream()
	if _, err := m.OpenWithID(ctx, "fixed", "tok", first); err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err := m.OpenWithID(ctx, "fixed", "other", sessiontest.NewRecordingStream())
	if !errors.Is(err, sessions.ErrDuplicateSession) {
		t.Fatalf("err = %v, want ErrDuplicateSession", err)
	}
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "session.open.duplicate") {
		t.Fatalf("duplicate not logged at error level: %s", buf.String())
	}

	// The original session is untouched.
	cred, ok := m.Registry().CredentialFor("fixed")
	if !ok || cred.Credential.Reveal() != "tok" {
		t.Fatalf("original session replaced: %+v ok=%v", cred, ok)
	}
}

func TestCredentialNeverLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	m := sessions.NewManager(sessions.WithLogger(log))
	ctx := context.Background()

	const secret = "super-secret-token"
	s, err := m.Open(ctx, secret, sessiontest.NewRecordingStream())
	if err != nil {
		t.Fatal(err)
	}
	log.Info("explicit", slog.Any("cred", s.Credential().Credential), slog.Any("ctx", s.Credential()))
	m.Close(ctx, s.ID())

	if strings.Contains(buf.String(), secret) {
		t.Fatalf("credential leaked into logs: %s", buf.String())
	}
	if got := fmt.Sprint(s.Credential().Credential); got != "[redacted]" {
		t.Fatalf("fmt rendering = %q", got)
	}
	if got := fmt.Sprintf("%+v", s.Credential()); strings.Contains(got, secret) {
		t.Fatalf("credential context rendering leaked: %s", got)
	}
}

func TestPushAfterCloseBeginsIsRejected(t *testing.T) {
	m := sessions.NewManager()
	ctx := context.Background()
	rec := sessiontest.NewRecordingStream()
	s, err := m.Open(ctx, "tok", rec)
	if err != nil {
		t.Fatal(err)
	}

	entered, release := rec.Block()
	go func() { _ = m.Push(ctx, s.ID(), []byte("first")) }()
	<-entered

	closed := make(chan struct{})
	go func() {
		m.Close(ctx, s.ID())
		close(closed)
	}()

	// Wait until Close has flipped the state.
	for s.State() == sessions.StateOpen {
		runtime.Gosched()
	}

	if _, ok := m.Registry().CredentialFor(s.ID()); ok {
		t.Fatal("closing session still reports a credential")
	}

	release()
	<-closed

	if err := m.Push(ctx, s.ID(), []byte("second")); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("push after close err = %v", err)
	}
	if got := rec.Messages(); len(got) != 1 || string(got[0]) != "first" {
		t.Fatalf("messages = %q", got)
	}
}

func TestConcurrentPushesNeverOverlap(t *testing.T) {
	m := sessions.NewManager()
	ctx := context.Background()
	rec := sessiontest.NewRecordingStream()
	s, err := m.Open(ctx, "tok", rec)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.Push(ctx, s.ID(), []byte(fmt.Sprint(i))); err != nil {
				t.Errorf("push %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := rec.MaxConcurrentSends(); got != 1 {
		t.Fatalf("max concurrent sends = %d, want 1", got)
	}
	if got := len(rec.Messages()); got != 64 {
		t.Fatalf("delivered %d, want 64", got)
	}
}

func TestCloseAll(t *testing.T) {
	m := sessions.NewManager()
	ctx := context.Background()
	var opened []*sessions.Session
	for i := 0; i < 10; i++ {
		s, err := m.Open(ctx, "tok", sessiontest.NewRecordingStream())
		if err != nil {
			t.Fatal(err)
		}
		opened = append(opened, s)
	}

	m.CloseAll(ctx)

	if n := m.Registry().Len(); n != 0 {
		t.Fatalf("registry len = %d after CloseAll", n)
	}
	for _, s := range opened {
		if s.State() != sessions.StateClosed {
			t.Fatalf("session %s state = %v", s.ID(), s.State())
		}
	}
}
