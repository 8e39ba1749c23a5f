package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/store"
)

type payload struct {
	IDs  []int64 `json:"ids"`
	Note string  `json:"note"`
}

func TestKeys(t *testing.T) {
	if got := RecommendationKey(12, 5); got != "book_recommendations_12_5" {
		t.Errorf("RecommendationKey() = %s", got)
	}

	k1 := VisualQueryKey([]float64{0.1, 0.2}, 5)
	k2 := VisualQueryKey([]float64{0.1, 0.2}, 5)
	k3 := VisualQueryKey([]float64{0.1, 0.20001}, 5)
	k4 := VisualQueryKey([]float64{0.1, 0.2}, 3)
	if k1 != k2 {
		t.Error("same vector produced different keys")
	}
	if k1 == k3 || k1 == k4 {
		t.Error("different queries share a key")
	}
	if !strings.HasPrefix(k1, "visual_search_") || len(k1) != len("visual_search_")+16+2 {
		t.Errorf("VisualQueryKey() = %s", k1)
	}
}

func TestRetrievalCache_RoundTripAndExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	s := store.NewMemoryStore(store.WithClock(clock), store.WithCleanupInterval(0))
	defer s.Close()

	c := New(s, zerolog.Nop())
	ctx := context.Background()

	var miss payload
	if c.Get(ctx, ClassRecommendation, "k", &miss) {
		t.Fatal("Get() hit on empty cache")
	}

	c.Set(ctx, "k", payload{IDs: []int64{3, 1}, Note: "x"}, time.Minute)
	var got payload
	if !c.Get(ctx, ClassRecommendation, "k", &got) {
		t.Fatal("Get() missed after Set()")
	}
	if len(got.IDs) != 2 || got.IDs[0] != 3 || got.Note != "x" {
		t.Errorf("Get() = %+v", got)
	}

	// 覆盖写
	c.Set(ctx, "k", payload{Note: "y"}, time.Minute)
	var over payload
	c.Get(ctx, ClassRecommendation, "k", &over)
	if over.Note != "y" {
		t.Errorf("Set() did not overwrite: %+v", over)
	}

	now = now.Add(time.Minute)
	var expired payload
	if c.Get(ctx, ClassRecommendation, "k", &expired) {
		t.Error("Get() served an expired entry")
	}
}

func TestRetrievalCache_Disabled(t *testing.T) {
	c := New(store.NoopStore{}, zerolog.Nop())
	ctx := context.Background()
	c.Set(ctx, "k", payload{Note: "x"}, time.Minute)
	var got payload
	if c.Get(ctx, ClassVisualIndex, "k", &got) {
		t.Error("noop store produced a hit")
	}
}

type failingStore struct{ store.NoopStore }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestRetrievalCache_BackendErrorsAreMisses(t *testing.T) {
	c := New(failingStore{}, zerolog.Nop())
	ctx := context.Background()
	c.Set(ctx, "k", payload{}, time.Minute)
	var got payload
	if c.Get(ctx, ClassRecommendation, "k", &got) {
		t.Error("Get() hit on failing backend")
	}
}

func TestRetrievalCache_UndecodableEntry(t *testing.T) {
	s := store.NewMemoryStore(store.WithCleanupInterval(0))
	defer s.Close()
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("{not json"), time.Minute)

	c := New(s, zerolog.Nop())
	var got payload
	if c.Get(ctx, ClassRecommendation, "k", &got) {
		t.Error("Get() hit on corrupt entry")
	}
}

var _ core.Store = failingStore{}
