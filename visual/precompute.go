package visual

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/feature"
)

// PrecomputeReport 一次预计算的统计。
type PrecomputeReport struct {
	Candidates int           `json:"candidates"`
	Written    int           `json:"written"`
	Skipped    int           `json:"skipped"` // 目录中已有向量，未写入
	Failed     int           `json:"failed"`
	Took       time.Duration `json:"took"`
}

// Precomputer 为有封面但尚无视觉向量的物品抽取特征并回写目录。
// 已有向量的物品不会被重新计算；单个物品失败只计数，不中断整个任务。
type Precomputer struct {
	catalog     core.Catalog
	extractor   *feature.VisualExtractor
	concurrency int
	logger      zerolog.Logger
}

// NewPrecomputer 创建预计算任务，concurrency <= 0 时为 4。
func NewPrecomputer(catalog core.Catalog, extractor *feature.VisualExtractor, concurrency int, logger zerolog.Logger) *Precomputer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Precomputer{
		catalog:     catalog,
		extractor:   extractor,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "precompute").Logger(),
	}
}

// Run 执行一次预计算。只有目录列举失败会返回 error。
func (p *Precomputer) Run(ctx context.Context) (PrecomputeReport, error) {
	start := time.Now()
	items, err := p.catalog.ListItems(ctx, core.ListFilter{RequireImage: true, MissingVisualFeatures: true})
	if err != nil {
		return PrecomputeReport{}, core.WrapError(core.ErrCatalogUnavailable, err)
	}

	var written, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, it := range items {
		g.Go(func() error {
			res := p.extractor.Extract(gctx, feature.SourceFromRef(it.ImageRef))
			if res.Outcome.Degraded() {
				failed.Add(1)
				return nil
			}
			err := p.catalog.SaveVisualFeatures(gctx, it.Kind, it.ID, res.Vector)
			if errors.Is(err, core.ErrAlreadyPresent) {
				skipped.Add(1)
				p.logger.Debug().Str("ref", it.Ref()).Msg("visual features already present")
				return nil
			}
			if err != nil {
				failed.Add(1)
				p.logger.Warn().Err(err).Str("ref", it.Ref()).Msg("writing visual features failed")
				return nil
			}
			written.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := PrecomputeReport{
		Candidates: len(items),
		Written:    int(written.Load()),
		Skipped:    int(skipped.Load()),
		Failed:     int(failed.Load()),
		Took:       time.Since(start),
	}
	p.logger.Info().Int("candidates", report.Candidates).Int("written", report.Written).
		Int("skipped", report.Skipped).Int("failed", report.Failed).Dur("took", report.Took).Msg("visual feature precompute finished")
	return report, nil
}
