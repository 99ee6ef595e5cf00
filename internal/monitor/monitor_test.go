package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Mmauz1001/trump-trader/internal/domain"
)

func TestDedup(t *testing.T) {
	d := NewDedup(time.Hour)

	fp := Fingerprint("feed", "post-1")
	if d.IsDuplicate(fp) {
		t.Fatal("first sighting must not be a duplicate")
	}
	if !d.IsDuplicate(fp) {
		t.Fatal("second sighting within ttl must be a duplicate")
	}
	if d.IsDuplicate(Fingerprint("feed", "post-2")) {
		t.Fatal("different content must not collide")
	}
}

func TestDedupExpiry(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)

	fp := Fingerprint("feed", "post-1")
	d.IsDuplicate(fp)
	time.Sleep(20 * time.Millisecond)
	if d.IsDuplicate(fp) {
		t.Fatal("expired entry must be fresh again")
	}

	d.IsDuplicate(fp)
	time.Sleep(20 * time.Millisecond)
	d.Cleanup()
	d.mu.Lock()
	n := len(d.seen)
	d.mu.Unlock()
	if n != 0 {
		t.Fatalf("cleanup left %d expired entries", n)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("feed", "content")
	b := Fingerprint("feed", "content")
	if a != b {
		t.Fatal("fingerprint must be deterministic")
	}
	if a == Fingerprint("feed2", "content") {
		t.Fatal("source name must participate in the fingerprint")
	}
}

type stubSource struct {
	name    string
	signals []domain.SentimentSignal
	err     error
	polls   int
	mu      sync.Mutex
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Poll(context.Context) ([]domain.SentimentSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	return s.signals, s.err
}

func TestPollerForwardsFreshSignalsOnce(t *testing.T) {
	src := &stubSource{
		name: "feed",
		signals: []domain.SentimentSignal{
			{Score: 8, SourceName: "feed", SourceRef: "post-1"},
		},
	}
	out := make(chan domain.SentimentSignal, 4)
	p := NewPoller(src, NewDedup(time.Hour), out, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	p.poll(ctx)
	p.poll(ctx) // same content again

	if got := len(out); got != 1 {
		t.Fatalf("expected 1 forwarded signal, got %d", got)
	}
	sig := <-out
	if sig.Score != 8 || sig.SourceRef != "post-1" {
		t.Fatalf("unexpected signal %+v", sig)
	}
}

func TestPollerSurvivesSourceError(t *testing.T) {
	src := &stubSource{name: "feed", err: errors.New("feed down")}
	out := make(chan domain.SentimentSignal, 1)
	p := NewPoller(src, NewDedup(time.Hour), out, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.poll(context.Background())
	if len(out) != 0 {
		t.Fatal("no signal expected from a failed poll")
	}
}

func TestOrchestratorDeliversToHandler(t *testing.T) {
	src := &stubSource{
		name: "feed",
		signals: []domain.SentimentSignal{
			{Score: 2, SourceName: "feed", SourceRef: "post-9"},
		},
	}

	handled := make(chan domain.SentimentSignal, 1)
	handler := func(_ context.Context, sig domain.SentimentSignal) error {
		select {
		case handled <- sig:
		default:
		}
		return nil
	}

	o := NewOrchestrator([]Source{src}, handler, 10*time.Millisecond, time.Hour, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	select {
	case sig := <-handled:
		if sig.Score != 2 {
			t.Errorf("score: got %d, want 2", sig.Score)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal never reached the handler")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestOrchestratorSubmit(t *testing.T) {
	handled := make(chan int, 1)
	handler := func(_ context.Context, sig domain.SentimentSignal) error {
		handled <- sig.Score
		return nil
	}

	o := NewOrchestrator(nil, handler, time.Hour, time.Hour, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	if err := o.Submit(ctx, domain.SentimentSignal{Score: 9}); err != nil {
		t.Fatal(err)
	}
	select {
	case score := <-handled:
		if score != 9 {
			t.Errorf("score: got %d, want 9", score)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submitted signal never consumed")
	}
}

func TestOrchestratorHandlerErrorDoesNotStopConsumer(t *testing.T) {
	var calls int
	var mu sync.Mutex
	seen := make(chan struct{}, 8)
	handler := func(context.Context, domain.SentimentSignal) error {
		mu.Lock()
		calls++
		mu.Unlock()
		seen <- struct{}{}
		return domain.ErrAlreadyTrading
	}

	o := NewOrchestrator(nil, handler, time.Hour, time.Hour, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	for i := 0; i < 3; i++ {
		if err := o.Submit(ctx, domain.SentimentSignal{Score: 8}); err != nil {
			t.Fatal(err)
		}
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatal("consumer stopped after a handler error")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("handler calls: got %d, want 3", calls)
	}
}
