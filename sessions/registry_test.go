package sessions_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ggoodman/shiprocket-mcp-go/sessions"
	"github.com/ggoodman/shiprocket-mcp-go/sessions/sessiontest"
)

func TestRegistryRegisterLookupRemove(t *testing.T) {
	r := sessions.NewRegistry()

	s, err := r.Register("a", sessiontest.NewRecordingStream(), "tok-a")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.State() != sessions.StateOpen {
		t.Fatalf("new session state = %v", s.State())
	}

	got, ok := r.Lookup("a")
	if !ok || got != s {
		t.Fatalf("Lookup(a) = %v, %v", got, ok)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) reported present")
	}

	cred, ok := r.CredentialFor("a")
	if !ok || cred.SessionID != "a" || cred.Credential.Reveal() != "tok-a" {
		t.Fatalf("CredentialFor(a) = %+v, %v", cred, ok)
	}

	r.Remove("a")
	r.Remove("a")
	if _, ok := r.Lookup("a"); ok {
		t.Fatal("session still present after Remove")
	}
	if _, ok := r.CredentialFor("a"); ok {
		t.Fatal("credential still present after Remove")
	}
}

func TestRegistryRejectsInvalidAndDuplicate(t *testing.T) {
	r := sessions.NewRegistry()

	if _, err := r.Register("", sessiontest.NewRecordingStream(), "x"); !errors.Is(err, sessions.ErrInvalidSession) {
		t.Fatalf("empty id err = %v", err)
	}
	if _, err := r.Register("a", nil, "x"); !errors.Is(err, sessions.ErrInvalidSession) {
		t.Fatalf("nil stream err = %v", err)
	}
	if _, err := r.Register("a", sessiontest.NewRecordingStream(), "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register("a", sessiontest.NewRecordingStream(), "y"); !errors.Is(err, sessions.ErrDuplicateSession) {
		t.Fatalf("duplicate err = %v", err)
	}
}

// Each id is owned by one goroutine. After all goroutines finish, the
// registry holds exactly the ids that were registered and not removed.
func TestRegistryConcurrentDistinctIDs(t *testing.T) {
	r := sessions.NewRegistry()
	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if _, err := r.Register(id, sessiontest.NewRecordingStream(), "tok"); err != nil {
					t.Errorf("Register(%s): %v", id, err)
					return
				}
				if _, ok := r.Lookup(id); !ok {
					t.Errorf("Lookup(%s) missed own registration", id)
				}
				if i%2 == 1 {
					r.Remove(id)
				}
			}
		}(w)
	}
	wg.Wait()

	if got, want := r.Len(), workers*perWorker/2; got != want {
		t.Fatalf("Len = %d, want %d", got, want)
	}
	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			_, ok := r.Lookup(fmt.Sprintf("w%d-%d", w, i))
			if want := i%2 == 0; ok != want {
				t.Fatalf("Lookup(w%d-%d) = %v, want %v", w, i, ok, want)
			}
		}
	}
}

// Many goroutines race to register the same id; exactly one wins.
func TestRegistryConcurrentSameID(t *testing.T) {
	r := sessions.NewRegistry()
	const racers = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Register("contended", sessiontest.NewRecordingStream(), "tok")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, sessions.ErrDuplicateSession) {
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}
