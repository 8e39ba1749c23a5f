package recommend

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/cache"
	"github.com/rushteam/bookrec/catalog"
	"github.com/rushteam/bookrec/cluster"
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
	"github.com/rushteam/bookrec/store"
	"github.com/rushteam/bookrec/visual"
)

func book(id int64, author, genre, category string, vec []float64) *core.CatalogItem {
	return &core.CatalogItem{
		ID: id, Kind: core.KindCatalog, Title: "T", Author: author, Genre: genre, Category: category,
		Available: true, VisualFeatures: vec,
	}
}

func abcCatalog() *catalog.MemoryCatalog {
	return catalog.NewMemoryCatalog(
		book(1, "Tolkien", "Fiction", "Fantasy", []float64{1, 0, 0}),
		book(2, "Tolkien", "Fiction", "Fantasy", []float64{0.9, 0.1, 0}),
		book(3, "Gibbon", "History", "Rome", []float64{0, 0, 1}),
		&core.CatalogItem{ID: 1, Kind: core.KindPeer, Author: "X", Genre: "Y", Category: "Z", Available: true, VisualFeatures: []float64{0.8, 0.3, 0}},
	)
}

type harness struct {
	svc     *Service
	catalog *catalog.MemoryCatalog
	store   *cluster.FileArtifactStore
	handle  *cluster.ModelHandle
}

func newHarness(t *testing.T, c *catalog.MemoryCatalog, backend core.Store) *harness {
	t.Helper()
	logger := zerolog.Nop()
	artifacts := cluster.NewFileArtifactStore(filepath.Join(t.TempDir(), "recommender.json.gz"))
	handle := cluster.NewModelHandle(artifacts, cluster.NewTrainer(c, artifacts), logger)
	svc := New(Deps{
		Catalog:   c,
		Model:     handle,
		Index:     visual.NewBuilder(c, logger),
		Extractor: feature.NewVisualExtractor(nil, feature.NewGridEmbedder(), logger),
		Cache:     cache.New(backend, logger),
	})
	return &harness{svc: svc, catalog: c, store: artifacts, handle: handle}
}

func memStore(t *testing.T) *store.MemoryStore {
	s := store.NewMemoryStore(store.WithCleanupInterval(0))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func itemIDs(items []*core.CatalogItem) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func matchRefs(ms []core.Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Item.Ref()
	}
	return out
}

func TestRecommendByItem_EndToEnd(t *testing.T) {
	h := newHarness(t, abcCatalog(), memStore(t))
	items, outcome := h.svc.RecommendByItem(context.Background(), 1, 5)
	if outcome.Status != core.StatusOK {
		t.Fatalf("Status = %s (%s)", outcome.Status, outcome.Reason)
	}
	if !reflect.DeepEqual(itemIDs(items), []int64{2}) {
		t.Errorf("RecommendByItem(A) = %v, want [2]", itemIDs(items))
	}
}

func TestRecommendByItem_FallbackDeterminism(t *testing.T) {
	ctx := context.Background()

	// 有效模型 + 未知 ID
	withModel := newHarness(t, abcCatalog(), store.NoopStore{})
	if _, err := withModel.handle.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	unknown, o1 := withModel.svc.RecommendByItem(ctx, 404, 2)
	if o1.Status != core.StatusNotFound {
		t.Errorf("unknown id Status = %s, want not_found", o1.Status)
	}
	if !reflect.DeepEqual(itemIDs(unknown), []int64{1, 2}) {
		t.Errorf("unknown id defaults = %v, want [1 2]", itemIDs(unknown))
	}

	// 没有模型且训练失败（目录里没有可训练物品，但有默认列表）
	untrainable := catalog.NewMemoryCatalog(
		book(1, "", "Fiction", "Fantasy", nil),
		book(2, "", "Fiction", "Fantasy", nil),
		book(3, "", "History", "Rome", nil),
	)
	noModel := newHarness(t, untrainable, store.NoopStore{})
	first, o2 := noModel.svc.RecommendByItem(ctx, 1, 2)
	if o2.Status != core.StatusModelUnavailable {
		t.Errorf("no model Status = %s, want model_unavailable", o2.Status)
	}
	if ok, _ := noModel.store.Exists(ctx); ok {
		t.Error("artifact created for untrainable catalog")
	}
	second, _ := noModel.svc.RecommendByItem(ctx, 1, 2)

	// 查询物品本身不出现在默认列表里
	want := []int64{2, 3}
	if !reflect.DeepEqual(itemIDs(first), want) || !reflect.DeepEqual(itemIDs(second), want) {
		t.Errorf("defaults = %v then %v, want %v", itemIDs(first), itemIDs(second), want)
	}

	// 同一个未知 ID，有模型和没有模型时默认列表一致
	noModelUnknown, _ := noModel.svc.RecommendByItem(ctx, 404, 2)
	if !reflect.DeepEqual(itemIDs(unknown), itemIDs(noModelUnknown)) {
		t.Errorf("unknown id defaults differ: with model %v, without %v", itemIDs(unknown), itemIDs(noModelUnknown))
	}
}

func TestRecommendByItem_DefaultsExcludeQueryItem(t *testing.T) {
	ctx := context.Background()
	untrainable := catalog.NewMemoryCatalog(
		book(1, "", "Fiction", "Fantasy", nil),
		book(2, "", "Fiction", "Fantasy", nil),
		book(3, "", "History", "Rome", nil),
	)

	tests := []struct {
		name   string
		c      *catalog.MemoryCatalog
		id     int64
		topN   int
		status core.Status
		want   []int64
	}{
		// C 独占一个簇
		{name: "alone in cluster", c: abcCatalog(), id: 3, topN: 5, status: core.StatusEmpty, want: []int64{1, 2}},
		{name: "alone in cluster truncated", c: abcCatalog(), id: 3, topN: 1, status: core.StatusEmpty, want: []int64{1}},
		{name: "no model", c: untrainable, id: 1, topN: 5, status: core.StatusModelUnavailable, want: []int64{2, 3}},
		{name: "no model middle item", c: untrainable, id: 2, topN: 2, status: core.StatusModelUnavailable, want: []int64{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.c, memStore(t))
			for i := 0; i < 2; i++ {
				items, outcome := h.svc.RecommendByItem(ctx, tt.id, tt.topN)
				if outcome.Status != tt.status {
					t.Errorf("call %d: Status = %s (%s), want %s", i, outcome.Status, outcome.Reason, tt.status)
				}
				if got := itemIDs(items); !reflect.DeepEqual(got, tt.want) {
					t.Errorf("call %d: RecommendByItem(%d, %d) = %v, want %v", i, tt.id, tt.topN, got, tt.want)
				}
				for _, it := range items {
					if it.ID == tt.id {
						t.Errorf("call %d: result contains query item %d", i, tt.id)
					}
				}
			}
		})
	}
}

func TestRecommendByItem_CachesResultsAndDefaults(t *testing.T) {
	ctx := context.Background()
	c := abcCatalog()
	h := newHarness(t, c, memStore(t))

	first, o1 := h.svc.RecommendByItem(ctx, 1, 5)
	if o1.Cached {
		t.Fatal("first call reported cached")
	}
	// 目录变化在缓存窗口内不可见
	c.Remove(core.KindCatalog, 2)
	second, o2 := h.svc.RecommendByItem(ctx, 1, 5)
	if !o2.Cached || o2.Status != o1.Status {
		t.Errorf("second call outcome = %+v", o2)
	}
	if !reflect.DeepEqual(itemIDs(first), itemIDs(second)) {
		t.Errorf("cached result differs: %v vs %v", itemIDs(first), itemIDs(second))
	}

	// 默认列表同样被缓存，并保留降级状态
	_, d1 := h.svc.RecommendByItem(ctx, 404, 5)
	_, d2 := h.svc.RecommendByItem(ctx, 404, 5)
	if d1.Status != core.StatusNotFound || d2.Status != core.StatusNotFound || !d2.Cached {
		t.Errorf("default caching: %+v then %+v", d1, d2)
	}
}

func TestService_CacheDisabledEquivalence(t *testing.T) {
	ctx := context.Background()
	enabled := newHarness(t, abcCatalog(), memStore(t))
	disabled := newHarness(t, abcCatalog(), store.NoopStore{})

	for _, id := range []int64{1, 2, 3, 404} {
		for round := 0; round < 2; round++ {
			a, oa := enabled.svc.RecommendByItem(ctx, id, 5)
			b, ob := disabled.svc.RecommendByItem(ctx, id, 5)
			if !reflect.DeepEqual(itemIDs(a), itemIDs(b)) || oa.Status != ob.Status {
				t.Errorf("item %d round %d: %v/%s vs %v/%s", id, round, itemIDs(a), oa.Status, itemIDs(b), ob.Status)
			}
		}
	}

	for _, q := range [][]float64{{1, 0, 0}, {0, 0, 1}, {0, 1, 0}} {
		for round := 0; round < 2; round++ {
			a, oa := enabled.svc.RecommendByVector(ctx, q, 5)
			b, ob := disabled.svc.RecommendByVector(ctx, q, 5)
			if !reflect.DeepEqual(matchRefs(a), matchRefs(b)) || oa.Status != ob.Status {
				t.Errorf("vector %v round %d: %v vs %v", q, round, matchRefs(a), matchRefs(b))
			}
		}
	}
}

func TestRecommendByVector(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, abcCatalog(), memStore(t))

	matches, outcome := h.svc.RecommendByVector(ctx, []float64{1, 0, 0}, 5)
	if outcome.Status != core.StatusOK {
		t.Fatalf("Status = %s", outcome.Status)
	}
	want := []string{"book_1", "book_2", "user_book_1"}
	if !reflect.DeepEqual(matchRefs(matches), want) {
		t.Errorf("matches = %v, want %v", matchRefs(matches), want)
	}
	if matches[0].Similarity != 1 {
		t.Errorf("identical vector similarity = %v, want 1", matches[0].Similarity)
	}
	if matches[2].Kind != core.KindPeer {
		t.Errorf("Kind = %s, want user_book", matches[2].Kind)
	}

	// 没有超过阈值的条目：默认列表，相似度为 0
	matches, outcome = h.svc.RecommendByVector(ctx, []float64{0, 1, 0}, 2)
	if outcome.Status != core.StatusEmpty {
		t.Errorf("Status = %s, want empty", outcome.Status)
	}
	if !reflect.DeepEqual(matchRefs(matches), []string{"book_1", "book_2"}) {
		t.Errorf("defaults = %v", matchRefs(matches))
	}
	for _, m := range matches {
		if m.Similarity != 0 {
			t.Errorf("default similarity = %v, want 0", m.Similarity)
		}
	}

	// 非法向量
	_, outcome = h.svc.RecommendByVector(ctx, []float64{0, 0, 0}, 2)
	if outcome.Status != core.StatusFeatureUnavailable {
		t.Errorf("zero vector Status = %s, want feature_unavailable", outcome.Status)
	}
}

func TestRecommendByVisualQuery_ExtractionFailure(t *testing.T) {
	h := newHarness(t, abcCatalog(), memStore(t))
	matches, outcome := h.svc.RecommendByVisualQuery(context.Background(), feature.ImageSource{Path: "/nonexistent.png"}, 3)
	if outcome.Status != core.StatusFeatureUnavailable {
		t.Errorf("Status = %s, want feature_unavailable", outcome.Status)
	}
	if !reflect.DeepEqual(matchRefs(matches), []string{"book_1", "book_2", "book_3"}) {
		t.Errorf("defaults = %v", matchRefs(matches))
	}
}

type countingCatalog struct {
	*catalog.MemoryCatalog
	lists atomic.Int64
	fail  atomic.Bool
}

func (c *countingCatalog) ListItems(ctx context.Context, f core.ListFilter) ([]*core.CatalogItem, error) {
	c.lists.Add(1)
	if c.fail.Load() {
		return nil, errors.New("db down")
	}
	return c.MemoryCatalog.ListItems(ctx, f)
}

func TestIndex_CachedWithinTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	backend := store.NewMemoryStore(store.WithClock(func() time.Time { return now }), store.WithCleanupInterval(0))
	defer backend.Close()

	c := &countingCatalog{MemoryCatalog: abcCatalog()}
	logger := zerolog.Nop()
	svc := New(Deps{
		Catalog:   c,
		Index:     visual.NewBuilder(c, logger),
		Extractor: feature.NewVisualExtractor(nil, feature.NewGridEmbedder(), logger),
		Cache:     cache.New(backend, logger),
	})

	first, err := svc.Index(ctx)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	builds := c.lists.Load()
	if _, err := svc.Index(ctx); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if c.lists.Load() != builds {
		t.Error("index rebuilt within TTL")
	}

	now = now.Add(core.VisualIndexTTL)
	second, err := svc.Index(ctx)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if c.lists.Load() == builds {
		t.Error("index not rebuilt after TTL")
	}
	if first.Len() != second.Len() {
		t.Errorf("Len() = %d vs %d", first.Len(), second.Len())
	}
}

func TestRecommendByVector_CatalogDown(t *testing.T) {
	c := &countingCatalog{MemoryCatalog: abcCatalog()}
	c.fail.Store(true)
	logger := zerolog.Nop()
	svc := New(Deps{
		Catalog:   c,
		Index:     visual.NewBuilder(c, logger),
		Extractor: feature.NewVisualExtractor(nil, feature.NewGridEmbedder(), logger),
		Cache:     cache.New(store.NoopStore{}, logger),
	})

	matches, outcome := svc.RecommendByVector(context.Background(), []float64{1, 0, 0}, 3)
	if outcome.Status != core.StatusCatalogUnavailable {
		t.Errorf("Status = %s, want catalog_unavailable", outcome.Status)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("matches = %v, want empty non-nil", matches)
	}
}

func TestService_RetrainAndReload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, abcCatalog(), store.NoopStore{})

	h.catalog.Put(book(4, "Tolkien", "Fiction", "Fantasy", nil))
	if err := h.svc.Retrain(ctx); err != nil {
		t.Fatalf("Retrain() error = %v", err)
	}
	items, _ := h.svc.RecommendByItem(ctx, 1, 5)
	if !reflect.DeepEqual(itemIDs(items), []int64{2, 4}) {
		t.Errorf("after retrain = %v, want [2 4]", itemIDs(items))
	}
	if err := h.svc.ReloadModel(ctx); err != nil {
		t.Errorf("ReloadModel() error = %v", err)
	}
}
