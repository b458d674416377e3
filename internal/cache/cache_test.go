package cache

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Guliveer/vitalis/data-collector/internal/models"
)

func TestGet_NeverWritten(t *testing.T) {
	c := New()
	c.Update("x", "A", models.NewResult(time.Unix(1, 0), nil))

	tests := []struct {
		server, resolver string
	}{
		{"y", "A"},
		{"x", "B"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := c.Get(tt.server, tt.resolver); got != nil {
			t.Errorf("Get(%q, %q) = %v, want nil", tt.server, tt.resolver, got)
		}
	}
}

func TestUpdate_GetReturnsSameResult(t *testing.T) {
	c := New()
	r := models.NewResult(time.Unix(1, 0), models.Metrics{"a": models.Number(1)})

	c.Update("x", "A", r)

	if got := c.Get("x", "A"); got != r {
		t.Errorf("Get(x, A) = %p, want %p", got, r)
	}
}

func TestUpdate_NilIgnored(t *testing.T) {
	c := New()
	r := models.NewResult(time.Unix(1, 0), nil)
	c.Update("x", "A", r)
	c.Update("x", "A", nil)

	if got := c.Get("x", "A"); got != r {
		t.Errorf("Get(x, A) = %v, want previous result", got)
	}
}

func TestSnapshot_SingleEntry(t *testing.T) {
	c := New()
	t1 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r := models.NewResult(t1, models.Metrics{"a": models.Number(1)})
	c.Update("x", "A", r)

	snap := c.Snapshot()
	want := Snapshot{"x": {"A": r}}
	if !reflect.DeepEqual(snap, want) {
		t.Errorf("Snapshot() = %v, want %v", snap, want)
	}
}

func TestUpdate_FullReplace(t *testing.T) {
	c := New()
	t1 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	c.Update("x", "A", models.NewResult(t1, models.Metrics{"a": models.Number(1), "b": models.Number(2)}))
	second := models.NewResult(t2, models.Metrics{"a": models.Number(3)})
	c.Update("x", "A", second)

	got := c.Snapshot()["x"]["A"]
	if got != second {
		t.Fatalf("snapshot entry = %v, want second result", got)
	}
	if !got.Timestamp().Equal(t2) {
		t.Errorf("Timestamp() = %v, want %v", got.Timestamp(), t2)
	}
	if _, ok := got.Metric("b"); ok {
		t.Error("metric b survived a full replace")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestSnapshot_Idempotent(t *testing.T) {
	c := New()
	c.Update("x", "A", models.NewResult(time.Unix(1, 0), models.Metrics{"a": models.Number(1)}))
	c.Update("y", "B", models.NewResult(time.Unix(2, 0), models.Metrics{"b": models.Number(2)}))

	first := c.Snapshot()
	second := c.Snapshot()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated snapshots differ: %v vs %v", first, second)
	}
}

func TestSnapshot_IsolatedFromLaterUpdates(t *testing.T) {
	c := New()
	r1 := models.NewResult(time.Unix(1, 0), nil)
	c.Update("x", "A", r1)

	snap := c.Snapshot()
	c.Update("x", "A", models.NewResult(time.Unix(2, 0), nil))
	c.Update("x", "B", models.NewResult(time.Unix(3, 0), nil))

	if snap["x"]["A"] != r1 {
		t.Error("snapshot entry changed after a later update")
	}
	if _, ok := snap["x"]["B"]; ok {
		t.Error("snapshot gained an entry after a later update")
	}
}

func TestConcurrentUpdateAndSnapshot(t *testing.T) {
	c := New()
	const writers = 4
	const iterations = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			server := fmt.Sprintf("server-%d", w)
			for i := 0; i < iterations; i++ {
				c.Update(server, "A", models.NewResult(time.Unix(int64(i), 0), models.Metrics{
					"i":      models.Number(i),
					"double": models.Number(2 * i),
				}))
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; i++ {
			for _, resolvers := range c.Snapshot() {
				for _, r := range resolvers {
					iv, _ := r.Metric("i")
					dv, _ := r.Metric("double")
					if dv.Float() != 2*iv.Float() || r.Timestamp().Unix() != int64(iv.Float()) {
						t.Errorf("torn result observed: %v", r.Metrics())
						return
					}
				}
			}
		}
	}()

	wg.Wait()
	<-done

	if c.Len() != writers {
		t.Errorf("Len() = %d, want %d", c.Len(), writers)
	}
}
