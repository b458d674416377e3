package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/data-collector/internal/cache"
	"github.com/Guliveer/vitalis/data-collector/internal/models"
	"github.com/Guliveer/vitalis/data-collector/internal/resolver"
)

// scriptedResolver returns whatever run returns and records every call.
type scriptedResolver struct {
	id    string
	run   func(previous *models.Result) (models.Outcome, error)
	calls *[]string
	seen  []*models.Result
}

func (s *scriptedResolver) ID() string { return s.id }

func (s *scriptedResolver) Run(_ context.Context, server resolver.Server, previous *models.Result) (models.Outcome, error) {
	if s.calls != nil {
		*s.calls = append(*s.calls, server.Hostname+"/"+s.id)
	}
	s.seen = append(s.seen, previous)
	return s.run(previous)
}

func resultAt(ts time.Time, metrics models.Metrics) func(*models.Result) (models.Outcome, error) {
	return func(*models.Result) (models.Outcome, error) {
		return models.NewResult(ts, metrics), nil
	}
}

func TestRunCycle_StoresResults(t *testing.T) {
	results := cache.New()
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &scriptedResolver{id: "A", run: resultAt(t1, models.Metrics{"a": models.Number(1)})}

	s := New([]resolver.Server{{Hostname: "x", Resolvers: []resolver.Resolver{a}}}, results, time.Second, zap.NewNop())
	s.RunCycle(context.Background())

	got := results.Get("x", "A")
	if got == nil {
		t.Fatal("no result stored for x/A")
	}
	if !got.Timestamp().Equal(t1) {
		t.Errorf("Timestamp() = %v, want %v", got.Timestamp(), t1)
	}
	if v, _ := got.Metric("a"); v.Float() != 1 {
		t.Errorf("metric a = %v, want 1", v)
	}
	if n := testutil.ToFloat64(s.runs.WithLabelValues("A", outcomeResult)); n != 1 {
		t.Errorf("result runs = %v, want 1", n)
	}
}

func TestRunCycle_PassesPreviousResult(t *testing.T) {
	results := cache.New()
	prior := models.NewResult(time.Unix(10, 0), nil)
	results.Update("x", "A", prior)

	a := &scriptedResolver{id: "A", run: resultAt(time.Unix(20, 0), nil)}
	s := New([]resolver.Server{{Hostname: "x", Resolvers: []resolver.Resolver{a}}}, results, time.Second, zap.NewNop())

	s.RunCycle(context.Background())
	s.RunCycle(context.Background())

	if len(a.seen) != 2 {
		t.Fatalf("resolver ran %d times, want 2", len(a.seen))
	}
	if a.seen[0] != prior {
		t.Errorf("first run previous = %v, want the seeded result", a.seen[0])
	}
	if a.seen[1] == nil || a.seen[1].Timestamp().Unix() != 20 {
		t.Errorf("second run previous = %v, want the result of the first run", a.seen[1])
	}
}

func TestRunCycle_SkipLeavesCacheUntouched(t *testing.T) {
	results := cache.New()
	prior := models.NewResult(time.Unix(10, 0), models.Metrics{"a": models.Number(1)})
	results.Update("x", "A", prior)

	a := &scriptedResolver{id: "A", run: func(*models.Result) (models.Outcome, error) {
		return models.Skip("throttled"), nil
	}}
	s := New([]resolver.Server{{Hostname: "x", Resolvers: []resolver.Resolver{a}}}, results, time.Second, zap.NewNop())
	s.RunCycle(context.Background())

	if got := results.Get("x", "A"); got != prior {
		t.Errorf("Get(x, A) = %v, want the pre-cycle result", got)
	}
	if n := testutil.ToFloat64(s.runs.WithLabelValues("A", outcomeSkipped)); n != 1 {
		t.Errorf("skipped runs = %v, want 1", n)
	}
}

func TestRunCycle_FailureIsolation(t *testing.T) {
	results := cache.New()
	prior := models.NewResult(time.Unix(10, 0), nil)
	results.Update("x", "broken", prior)

	var calls []string
	broken := &scriptedResolver{id: "broken", calls: &calls, run: func(*models.Result) (models.Outcome, error) {
		return nil, errors.New("network unreachable")
	}}
	panicky := &scriptedResolver{id: "panicky", calls: &calls, run: func(*models.Result) (models.Outcome, error) {
		panic("boom")
	}}
	empty := &scriptedResolver{id: "empty", calls: &calls, run: func(*models.Result) (models.Outcome, error) {
		return nil, nil
	}}
	good := &scriptedResolver{id: "good", calls: &calls, run: resultAt(time.Unix(20, 0), nil)}
	other := &scriptedResolver{id: "good", calls: &calls, run: resultAt(time.Unix(30, 0), nil)}

	servers := []resolver.Server{
		{Hostname: "x", Resolvers: []resolver.Resolver{broken, panicky, empty, good}},
		{Hostname: "y", Resolvers: []resolver.Resolver{other}},
	}
	s := New(servers, results, time.Second, zap.NewNop())
	s.RunCycle(context.Background())

	want := []string{"x/broken", "x/panicky", "x/empty", "x/good", "y/good"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}

	if got := results.Get("x", "broken"); got != prior {
		t.Errorf("failed resolver changed its cache entry to %v", got)
	}
	if results.Get("x", "panicky") != nil || results.Get("x", "empty") != nil {
		t.Error("failed resolvers must not create cache entries")
	}
	if results.Get("x", "good") == nil || results.Get("y", "good") == nil {
		t.Error("resolvers after a failure did not store their results")
	}
	if n := testutil.ToFloat64(s.runs.WithLabelValues("broken", outcomeError)); n != 1 {
		t.Errorf("broken error runs = %v, want 1", n)
	}
	if n := testutil.ToFloat64(s.runs.WithLabelValues("panicky", outcomeError)); n != 1 {
		t.Errorf("panicky error runs = %v, want 1", n)
	}
}

func TestRunCycle_StopsOnCancel(t *testing.T) {
	var calls []string
	a := &scriptedResolver{id: "A", calls: &calls, run: resultAt(time.Now(), nil)}
	s := New([]resolver.Server{{Hostname: "x", Resolvers: []resolver.Resolver{a}}}, cache.New(), time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunCycle(ctx)

	if len(calls) != 0 {
		t.Errorf("calls = %v, want none after cancellation", calls)
	}
}

func TestStart_RepeatsUntilCancelled(t *testing.T) {
	ran := make(chan struct{}, 10)
	a := &scriptedResolver{id: "A", run: func(*models.Result) (models.Outcome, error) {
		ran <- struct{}{}
		return models.NewResult(time.Now(), nil), nil
	}}
	s := New([]resolver.Server{{Hostname: "x", Resolvers: []resolver.Resolver{a}}}, cache.New(), 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d did not run", i+1)
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after cancellation")
	}
}

type brokenStore struct{}

func (brokenStore) Get(string, string) *models.Result { panic("corrupted cache") }

func (brokenStore) Update(string, string, *models.Result) {}

func TestStart_GuardsLoopFailure(t *testing.T) {
	a := &scriptedResolver{id: "A", run: resultAt(time.Now(), nil)}
	s := New([]resolver.Server{{Hostname: "x", Resolvers: []resolver.Resolver{a}}}, brokenStore{}, time.Second, zap.NewNop())

	if err := s.Start(context.Background()); err == nil {
		t.Error("Start() = nil, want the loop failure")
	}
}

func TestRegister_Metrics(t *testing.T) {
	s := New(nil, cache.New(), time.Second, zap.NewNop())
	reg := prometheus.NewRegistry()
	if err := s.Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := s.Register(reg); err == nil {
		t.Error("registering twice should fail")
	}
}
