package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/core"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("model:\n  path: /tmp/m.json.gz\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Model.Path != "/tmp/m.json.gz" {
		t.Errorf("Model.Path = %s", cfg.Model.Path)
	}
	if cfg.Catalog.Driver != "memory" || cfg.Cache.Backend != "memory" || cfg.Visual.Embedder != "grid" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Recommend.DefaultTopN() != core.DefaultTopN ||
		cfg.Recommend.RecommendationTTL() != core.RecommendationTTL ||
		cfg.Recommend.VisualIndexTTL() != core.VisualIndexTTL {
		t.Errorf("Recommend = %+v", cfg.Recommend)
	}
}

func TestParse_Overrides(t *testing.T) {
	yml := `
log:
  level: debug
  format: console
catalog:
  driver: sqlite
  dsn: ":memory:"
  migrate: true
cache:
  backend: redis
  addr: localhost:6379
  prefix: bookrec
visual:
  embedder: serving
  endpoint: http://localhost:8080
  model_name: vgg16
  protocol: kserve_v2
  timeout: 2s
  concurrency: 8
training:
  max_clusters: 4
  filter: 'item.genre != ""'
recommend:
  top_n: 10
  result_ttl: 5m
`
	cfg, err := Parse([]byte(yml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Catalog.DSN != ":memory:" || !cfg.Catalog.Migrate {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.Visual.Timeout != 2*time.Second || cfg.Visual.Protocol != "kserve_v2" {
		t.Errorf("Visual = %+v", cfg.Visual)
	}
	if cfg.Recommend.TopN != 10 || cfg.Recommend.ResultTTL != 5*time.Minute || cfg.Recommend.IndexTTL != core.VisualIndexTTL {
		t.Errorf("Recommend = %+v", cfg.Recommend)
	}
	if cfg.Training.MaxClusters != 4 || cfg.Training.Seed != core.ClusterSeed {
		t.Errorf("Training = %+v", cfg.Training)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{name: "unknown driver", yml: "catalog:\n  driver: postgres\n", want: "Driver"},
		{name: "sqlite without dsn", yml: "catalog:\n  driver: sqlite\n", want: "DSN"},
		{name: "redis without addr", yml: "cache:\n  backend: redis\n", want: "Addr"},
		{name: "serving without endpoint", yml: "visual:\n  embedder: serving\n  model_name: m\n", want: "Endpoint"},
		{name: "bad protocol", yml: "visual:\n  protocol: grpc\n", want: "Protocol"},
		{name: "zero top n", yml: "recommend:\n  top_n: 0\n", want: "TopN"},
		{name: "unknown embedder", yml: "visual:\n  embedder: clip\n", want: "unsupported embedder"},
		{name: "malformed yaml", yml: "catalog: [", want: "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yml))
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRegisterEmbedder(t *testing.T) {
	RegisterEmbedder("test-fixed", func(VisualConfig, zerolog.Logger) (core.ImageEmbedder, error) {
		return buildGridEmbedder(VisualConfig{}, zerolog.Nop())
	})
	found := false
	for _, name := range SupportedEmbedders() {
		if name == "test-fixed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("SupportedEmbedders() = %v", SupportedEmbedders())
	}
	if _, err := Parse([]byte("visual:\n  embedder: test-fixed\n")); err != nil {
		t.Errorf("Parse() error = %v", err)
	}

	e, err := BuildEmbedder(VisualConfig{Embedder: "serving", Endpoint: "http://x", ModelName: "vgg16", Dimension: 4096}, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildEmbedder() error = %v", err)
	}
	if e.Name() != "serving:vgg16" || e.Dimension() != 4096 {
		t.Errorf("embedder = %s/%d", e.Name(), e.Dimension())
	}
}

const seedJSON = `[
  {"id": 1, "kind": "book", "title": "A", "author": "Tolkien", "genre": "Fiction", "category": "Fantasy", "visual_features": [1, 0, 0]},
  {"id": 2, "kind": "book", "title": "B", "author": "Tolkien", "genre": "Fiction", "category": "Fantasy", "visual_features": [0.9, 0.1, 0]},
  {"id": 3, "kind": "book", "title": "C", "author": "Gibbon", "genre": "History", "category": "Rome"}
]`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(seedJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuild_Memory(t *testing.T) {
	cfg := Default()
	cfg.Catalog.Seed = writeSeed(t)
	cfg.Model.Path = filepath.Join(t.TempDir(), "model", "recommender.json.gz")
	cfg.Cache.CleanupInterval = 0

	ctx := context.Background()
	app, err := Build(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer app.Close()

	items, outcome := app.Service.RecommendByItem(ctx, 1, 5)
	if outcome.Status != core.StatusOK || len(items) != 1 || items[0].ID != 2 {
		t.Errorf("RecommendByItem() = %v, %+v", items, outcome)
	}
	if ok, _ := app.Artifacts.Exists(ctx); !ok {
		t.Error("artifact not persisted")
	}

	matches, outcome := app.Service.RecommendByVector(ctx, []float64{1, 0, 0}, 5)
	if outcome.Status != core.StatusOK || len(matches) != 2 {
		t.Errorf("RecommendByVector() = %d matches, %+v", len(matches), outcome)
	}
}

func TestBuild_SQLiteSeedsOnce(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	cfg.Catalog = CatalogConfig{
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "books.db"),
		Migrate: true,
		Seed:    writeSeed(t),
	}
	cfg.Cache.Backend = "none"
	cfg.Model.Path = filepath.Join(t.TempDir(), "recommender.json.gz")

	for i := 0; i < 2; i++ {
		app, err := Build(ctx, cfg, zerolog.Nop())
		if err != nil {
			t.Fatalf("Build() #%d error = %v", i, err)
		}
		items, err := app.Catalog.ListItems(ctx, core.ListFilter{})
		if err != nil {
			t.Fatalf("ListItems() error = %v", err)
		}
		if len(items) != 3 {
			t.Errorf("Build() #%d: %d items, want 3", i, len(items))
		}
		if err := app.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}
}

func TestBuild_BadFilter(t *testing.T) {
	cfg := Default()
	cfg.Training.Filter = "item.genre =="
	if _, err := Build(context.Background(), cfg, zerolog.Nop()); err == nil || !strings.Contains(err.Error(), "training.filter") {
		t.Errorf("Build() error = %v", err)
	}
}

func TestLoadSeed_UnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	_ = os.WriteFile(path, []byte(`[{"id": 1, "kind": "magazine"}]`), 0o644)
	if _, err := LoadSeed(path); err == nil {
		t.Error("LoadSeed() accepted unknown kind")
	}
}
