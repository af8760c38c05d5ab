package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/shiprocket-mcp-go/sessions"
)

// TransportFactory creates a fresh Transport for one subtest.
type TransportFactory func(t *testing.T) sessions.Transport

// RunTransportTests runs the Transport conformance suite against factory.
func RunTransportTests(t *testing.T, factory TransportFactory) {
	t.Run("Open_AllocatesDistinctIDs", func(t *testing.T) { testOpenDistinctIDs(t, factory) })
	t.Run("Push_DeliversToOwningStreamOnly", func(t *testing.T) { testPushIsolation(t, factory) })
	t.Run("Push_UnknownSession", func(t *testing.T) { testPushUnknown(t, factory) })
	t.Run("Push_PreservesIssueOrder", func(t *testing.T) { testPushOrder(t, factory) })
	t.Run("Push_StreamFailureReportsClosed", func(t *testing.T) { testPushStreamFailure(t, factory) })
	t.Run("Close_IsIdempotent", func(t *testing.T) { testCloseIdempotent(t, factory) })
	t.Run("Close_WaitsForInFlightWrite", func(t *testing.T) { testCloseDrainsInFlight(t, factory) })
}

func testOpenDistinctIDs(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		s, err := tr.Open(ctx, sessions.Credential(fmt.Sprintf("tok-%d", i)), NewRecordingStream())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, dup := seen[s.ID()]; dup {
			t.Fatalf("duplicate session id %q", s.ID())
		}
		seen[s.ID()] = struct{}{}
		if got := s.Credential().Credential.Reveal(); got != fmt.Sprintf("tok-%d", i) {
			t.Fatalf("credential = %q", got)
		}
	}
}

func testPushIsolation(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	ctx := context.Background()

	a, b := NewRecordingStream(), NewRecordingStream()
	sa, err := tr.Open(ctx, "a", a)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Open(ctx, "b", b); err != nil {
		t.Fatal(err)
	}

	if err := tr.Push(ctx, sa.ID(), []byte("hello")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if got := a.Messages(); len(got) != 1 || string(got[0]) != "hello" {
		t.Fatalf("stream a got %q", got)
	}
	if got := b.Messages(); len(got) != 0 {
		t.Fatalf("stream b unexpectedly got %q", got)
	}
}

func testPushUnknown(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	err := tr.Push(context.Background(), "does-not-exist", []byte("x"))
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("Push err = %v, want ErrSessionNotFound", err)
	}
}

func testPushOrder(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	ctx := context.Background()
	rec := NewRecordingStream()
	s, err := tr.Open(ctx, "tok", rec)
	if err != nil {
		t.Fatal(err)
	}

	const n = 100
	for i := 0; i < n; i++ {
		if err := tr.Push(ctx, s.ID(), []byte(fmt.Sprintf("%03d", i))); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	msgs := rec.Messages()
	if len(msgs) != n {
		t.Fatalf("got %d messages, want %d", len(msgs), n)
	}
	for i, m := range msgs {
		if string(m) != fmt.Sprintf("%03d", i) {
			t.Fatalf("message %d = %q", i, m)
		}
	}
}

func testPushStreamFailure(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	ctx := context.Background()
	rec := NewRecordingStream()
	s, err := tr.Open(ctx, "tok", rec)
	if err != nil {
		t.Fatal(err)
	}
	rec.Fail()

	err = tr.Push(ctx, s.ID(), []byte("x"))
	if !errors.Is(err, sessions.ErrStreamClosed) {
		t.Fatalf("Push err = %v, want ErrStreamClosed", err)
	}
}

func testCloseIdempotent(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	ctx := context.Background()
	s, err := tr.Open(ctx, "tok", NewRecordingStream())
	if err != nil {
		t.Fatal(err)
	}

	tr.Close(ctx, s.ID())
	tr.Close(ctx, s.ID())
	tr.Close(ctx, "never-existed")

	if s.State() != sessions.StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}
	if err := tr.Push(ctx, s.ID(), []byte("x")); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("Push after close err = %v, want ErrSessionNotFound", err)
	}
}

func testCloseDrainsInFlight(t *testing.T, factory TransportFactory) {
	tr := factory(t)
	ctx := context.Background()
	rec := NewRecordingStream()
	s, err := tr.Open(ctx, "tok", rec)
	if err != nil {
		t.Fatal(err)
	}

	entered, release := rec.Block()
	defer release()

	var wg sync.WaitGroup
	wg.Add(1)
	var pushErr error
	go func() {
		defer wg.Done()
		pushErr = tr.Push(ctx, s.ID(), []byte("in-flight"))
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("push never reached the stream")
	}

	closed := make(chan struct{})
	go func() {
		tr.Close(ctx, s.ID())
		close(closed)
	}()

	// Close must not finish while the write is still in flight.
	select {
	case <-closed:
		t.Fatal("Close returned before in-flight write drained")
	case <-time.After(50 * time.Millisecond):
	}
	if s.State() != sessions.StateClosing {
		t.Fatalf("state during drain = %v, want closing", s.State())
	}

	release()
	wg.Wait()
	<-closed

	if pushErr != nil {
		t.Fatalf("in-flight push err = %v", pushErr)
	}
	if got := rec.Messages(); len(got) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(got))
	}
	if s.State() != sessions.StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}
}
