package cluster

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/bookrec/core"
)

// ModelHandle 持有当前生效的模型快照，由调用方显式创建并注入服务。
//
// 首次 Get 时懒加载：优先读取持久化产物，不存在（或损坏）时同步训练一次。
// 并发的首次加载通过 singleflight 合并；模型就绪后读取只做一次原子 Load，不会被训练阻塞。
type ModelHandle struct {
	store   ArtifactStore
	trainer *Trainer
	current atomic.Pointer[Model]
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewModelHandle 创建模型句柄。
func NewModelHandle(store ArtifactStore, trainer *Trainer, logger zerolog.Logger) *ModelHandle {
	return &ModelHandle{
		store:   store,
		trainer: trainer,
		logger:  logger.With().Str("component", "model_handle").Logger(),
	}
}

// Get 返回当前模型，必要时加载或训练。
func (h *ModelHandle) Get(ctx context.Context) (*Model, error) {
	if m := h.current.Load(); m != nil {
		return m, nil
	}
	v, err, _ := h.group.Do("init", func() (any, error) {
		if m := h.current.Load(); m != nil {
			return m, nil
		}
		m, err := h.load(ctx)
		if errors.Is(err, core.ErrModelNotFound) || errors.Is(err, core.ErrModelCorrupt) {
			h.logger.Warn().Err(err).Msg("no usable artifact, training synchronously")
			m, err = h.train(ctx)
		}
		if err != nil {
			return nil, err
		}
		h.current.Store(m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Model), nil
}

// Current 返回已加载的模型，未加载时为 nil，不触发加载。
func (h *ModelHandle) Current() *Model {
	return h.current.Load()
}

// Reload 重新读取持久化产物（例如另一个进程完成了训练）。失败时保留旧模型。
func (h *ModelHandle) Reload(ctx context.Context) error {
	v, err, _ := h.group.Do("reload", func() (any, error) {
		return h.load(ctx)
	})
	if err != nil {
		return err
	}
	h.swap(v.(*Model))
	return nil
}

// Retrain 重新训练并替换当前模型。失败（包括目录为空）时保留旧模型。
func (h *ModelHandle) Retrain(ctx context.Context) error {
	v, err, _ := h.group.Do("retrain", func() (any, error) {
		return h.train(ctx)
	})
	if err != nil {
		return err
	}
	h.swap(v.(*Model))
	return nil
}

func (h *ModelHandle) swap(m *Model) {
	old := h.current.Swap(m)
	ev := h.logger.Info().Str("artifact_id", m.Artifact.ID)
	if old != nil {
		ev = ev.Str("previous_id", old.Artifact.ID)
	}
	ev.Msg("model swapped")
}

func (h *ModelHandle) load(ctx context.Context) (*Model, error) {
	a, err := h.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewModel(a)
}

func (h *ModelHandle) train(ctx context.Context) (*Model, error) {
	if h.trainer == nil {
		return nil, core.ErrModelNotFound
	}
	a, err := h.trainer.Train(ctx)
	if err != nil {
		return nil, err
	}
	return NewModel(a)
}
