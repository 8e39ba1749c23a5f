package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/bookrec/cache"
	"github.com/rushteam/bookrec/catalog"
	"github.com/rushteam/bookrec/cluster"
	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
	"github.com/rushteam/bookrec/pkg/dsl"
	"github.com/rushteam/bookrec/recommend"
	"github.com/rushteam/bookrec/store"
	"github.com/rushteam/bookrec/visual"
)

// App 按配置装配好的组件集合，生命周期归调用方。
type App struct {
	Config      *Config
	Logger      zerolog.Logger
	Catalog     core.Catalog
	Store       core.Store
	Artifacts   *cluster.FileArtifactStore
	Trainer     *cluster.Trainer
	Model       *cluster.ModelHandle
	Extractor   *feature.VisualExtractor
	Index       *visual.Builder
	Precomputer *visual.Precomputer
	Service     *recommend.Service

	closers []func() error
}

// Build 根据配置创建全部组件。任一步失败都会释放已创建的资源。
func Build(ctx context.Context, cfg *Config, logger zerolog.Logger) (app *App, err error) {
	if cfg == nil {
		cfg = Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	if app.Catalog, err = app.buildCatalog(ctx); err != nil {
		return nil, err
	}
	if app.Store, err = app.buildStore(); err != nil {
		return nil, err
	}

	trainFilter, err := compileFilter(cfg.Training.Filter)
	if err != nil {
		return nil, fmt.Errorf("training.filter: %w", err)
	}
	indexFilter, err := compileFilter(cfg.Visual.Filter)
	if err != nil {
		return nil, fmt.Errorf("visual.filter: %w", err)
	}

	app.Artifacts = cluster.NewFileArtifactStore(cfg.Model.Path)
	app.Trainer = cluster.NewTrainer(app.Catalog, app.Artifacts,
		cluster.WithFilter(trainFilter),
		cluster.WithSeed(cfg.Training.Seed),
		cluster.WithMaxClusters(cfg.Training.MaxClusters),
		cluster.WithTrainerLogger(logger),
	)
	app.Model = cluster.NewModelHandle(app.Artifacts, app.Trainer, logger)

	embedder, err := BuildEmbedder(cfg.Visual, logger)
	if err != nil {
		return nil, err
	}
	loaderOpts := []feature.ImageLoaderOption{}
	if cfg.Visual.FetchTimeout > 0 {
		loaderOpts = append(loaderOpts, feature.WithFetchTimeout(cfg.Visual.FetchTimeout))
	}
	if cfg.Visual.MaxImageBytes > 0 {
		loaderOpts = append(loaderOpts, feature.WithMaxImageBytes(cfg.Visual.MaxImageBytes))
	}
	app.Extractor = feature.NewVisualExtractor(feature.NewImageLoader(loaderOpts...), embedder, logger)
	app.Index = visual.NewBuilder(app.Catalog, logger, visual.WithIndexFilter(indexFilter))
	app.Precomputer = visual.NewPrecomputer(app.Catalog, app.Extractor, cfg.Visual.Concurrency, logger)

	app.Service = recommend.New(recommend.Deps{
		Catalog:   app.Catalog,
		Model:     app.Model,
		Index:     app.Index,
		Extractor: app.Extractor,
		Cache:     cache.New(app.Store, logger),
	}, recommend.WithConfig(cfg.Recommend), recommend.WithLogger(logger))

	return app, nil
}

// Close 按创建的逆序释放资源。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) buildCatalog(ctx context.Context) (core.Catalog, error) {
	cfg := a.Config.Catalog
	var seed []*core.CatalogItem
	if cfg.Seed != "" {
		items, err := LoadSeed(cfg.Seed)
		if err != nil {
			return nil, err
		}
		seed = items
	}

	switch cfg.Driver {
	case "memory":
		return catalog.NewMemoryCatalog(seed...), nil
	case "sqlite":
		c, err := catalog.NewSQLCatalog(catalog.SQLConfig{DSN: cfg.DSN, Migrate: cfg.Migrate}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		if len(seed) > 0 {
			if err := seedSQL(ctx, c, seed); err != nil {
				return nil, err
			}
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", cfg.Driver)
	}
}

// seedSQL 只在目录为空时导入，重复启动不会产生重复记录。
func seedSQL(ctx context.Context, c *catalog.SQLCatalog, seed []*core.CatalogItem) error {
	existing, err := c.ListItems(ctx, core.ListFilter{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, it := range seed {
		if err := c.Insert(ctx, it); err != nil {
			return fmt.Errorf("seeding %s: %w", it.Ref(), err)
		}
	}
	return nil
}

func (a *App) buildStore() (core.Store, error) {
	cfg := a.Config.Cache
	var s core.Store
	switch cfg.Backend {
	case "memory":
		s = store.NewMemoryStore(store.WithCleanupInterval(cfg.CleanupInterval))
	case "redis":
		rs, err := store.NewRedisStore(cfg.Addr, cfg.DB, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		s = rs
	case "none":
		s = store.NoopStore{}
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
	a.closers = append(a.closers, s.Close)
	return s, nil
}

func compileFilter(expr string) (*dsl.ItemFilter, error) {
	if expr == "" {
		return nil, nil
	}
	return dsl.Compile(expr)
}

// LoadSeed 读取 JSON 物品列表。
func LoadSeed(path string) ([]*core.CatalogItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var items []*core.CatalogItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, it := range items {
		if !it.Kind.Valid() {
			return nil, fmt.Errorf("seed item %d: unknown kind %q", i, it.Kind)
		}
	}
	return items, nil
}
