package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func echoContinue(newKey string) ContinueFunc {
	return func(ctx context.Context, turns []Turn) (string, string, error) {
		return "answer to " + turns[len(turns)-1].Content, newKey, nil
	}
}

func TestRegistry_ContinueRekeysChain(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default(), time.Hour, 16)
	reg.Remember("B1", []Turn{
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "first answer"},
	})

	found, err := reg.Continue(context.Background(), "B1", "tell me more", echoContinue("B2"))
	if err != nil {
		t.Fatalf("Continue(B1) error: %v", err)
	}
	if !found {
		t.Fatal("Continue(B1) = not found, want found")
	}

	// The old key is tombstoned.
	found, err = reg.Continue(context.Background(), "B1", "again", echoContinue("B3"))
	if err != nil || found {
		t.Fatalf("Continue(tombstoned B1) = (%v, %v), want (false, nil)", found, err)
	}

	// The chain is continuable only via the new key, with accumulated turns.
	var got []Turn
	found, err = reg.Continue(context.Background(), "B2", "third", func(ctx context.Context, turns []Turn) (string, string, error) {
		got = append([]Turn(nil), turns...)
		return "ok", "B3", nil
	})
	if err != nil || !found {
		t.Fatalf("Continue(B2) = (%v, %v), want (true, nil)", found, err)
	}
	want := []Turn{
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "first answer"},
		{Role: RoleUser, Content: "tell me more"},
		{Role: RoleAssistant, Content: "answer to tell me more"},
		{Role: RoleUser, Content: "third"},
	}
	if len(got) != len(want) {
		t.Fatalf("turns = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turns[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRegistry_UnknownKeyFallsThrough(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default(), time.Hour, 16)
	found, err := reg.Continue(context.Background(), "nope", "hi", echoContinue("B1"))
	if found || err != nil {
		t.Fatalf("Continue(unknown) = (%v, %v), want (false, nil)", found, err)
	}
}

func TestRegistry_FailedContinuationKeepsOldKeyLive(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default(), time.Hour, 16)
	reg.Remember("B1", []Turn{{Role: RoleAssistant, Content: "hello"}})

	wantErr := errors.New("reasoner unavailable")
	found, err := reg.Continue(context.Background(), "B1", "hi", func(ctx context.Context, turns []Turn) (string, string, error) {
		return "", "", wantErr
	})
	if !found || !errors.Is(err, wantErr) {
		t.Fatalf("Continue = (%v, %v), want (true, wantErr)", found, err)
	}

	// Old key must remain live after the failure.
	found, err = reg.Continue(context.Background(), "B1", "hi again", echoContinue("B2"))
	if !found || err != nil {
		t.Fatalf("Continue(B1 after failure) = (%v, %v), want (true, nil)", found, err)
	}
}

func TestRegistry_TTLEviction(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default(), time.Nanosecond, 16)
	reg.Remember("B1", []Turn{{Role: RoleAssistant, Content: "hello"}})
	time.Sleep(time.Millisecond)

	found, err := reg.Continue(context.Background(), "B1", "hi", echoContinue("B2"))
	if found || err != nil {
		t.Fatalf("Continue(expired) = (%v, %v), want (false, nil)", found, err)
	}
	if reg.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after expiry", reg.Len())
	}
}

func TestRegistry_CapacityEvictsOldest(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default(), time.Hour, 2)
	reg.Remember("B1", nil)
	reg.Remember("B2", nil)
	reg.Remember("B3", nil)

	if reg.Len() > 2 {
		t.Fatalf("Len() = %d, want at most maxEntries", reg.Len())
	}
	if found, _ := reg.Continue(context.Background(), "B3", "hi", echoContinue("B4")); !found {
		t.Fatal("newest entry must survive capacity eviction")
	}
}

func TestRegistry_ConcurrentContinuationsSerialize(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default(), time.Hour, 16)
	reg.Remember("B1", []Turn{{Role: RoleAssistant, Content: "hello"}})

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "next-" + string(rune('a'+i))
			found, err := reg.Continue(context.Background(), "B1", "race", echoContinue(key))
			if err != nil {
				t.Errorf("Continue error: %v", err)
				return
			}
			if found {
				wins <- key
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	// Exactly one continuation wins the chain; the rest observe a tombstone.
	var winners []string
	for key := range wins {
		winners = append(winners, key)
	}
	if len(winners) != 1 {
		t.Fatalf("winners = %v, want exactly one", winners)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 live key per chain", reg.Len())
	}
	if found, _ := reg.Continue(context.Background(), winners[0], "follow-up", echoContinue("final")); !found {
		t.Fatal("winning key must be continuable")
	}
}

func TestRegistry_EvictionDuringContinuationStaysDead(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.Default(), 20*time.Millisecond, 16)
	reg.Remember("B1", []Turn{{Role: RoleUser, Content: "question"}})

	inFlight := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	var found bool
	var err error
	go func() {
		defer close(done)
		found, err = reg.Continue(context.Background(), "B1", "more", func(ctx context.Context, turns []Turn) (string, string, error) {
			close(inFlight)
			<-release
			return "late answer", "B2", nil
		})
	}()

	// While the answer is in flight, let the TTL lapse and trigger a sweep.
	<-inFlight
	time.Sleep(40 * time.Millisecond)
	reg.Remember("C1", nil)
	close(release)
	<-done

	if err != nil {
		t.Fatalf("Continue error: %v", err)
	}
	if found {
		t.Fatal("continuation of an evicted chain must report not found")
	}
	if reg.Known("B2") {
		t.Fatal("evicted chain must not come back under the new key")
	}
	if reg.Known("B1") {
		t.Fatal("expired key must stay gone")
	}
}

func TestRegistry_Known(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, time.Hour, 10)
	if reg.Known("B1") {
		t.Fatal("empty registry must not know B1")
	}
	reg.Remember("B1", []Turn{{Role: RoleUser, Content: "q"}})
	if !reg.Known("B1") {
		t.Fatal("remembered key must be known")
	}
	if found, _ := reg.Continue(context.Background(), "B1", "more", echoContinue("B2")); !found {
		t.Fatal("continuation must succeed")
	}
	if reg.Known("B1") {
		t.Fatal("re-keyed chain must not be known under the old key")
	}
	if !reg.Known("B2") {
		t.Fatal("re-keyed chain must be known under the new key")
	}
}
