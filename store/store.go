package store

import (
	"context"
	"time"

	"github.com/rushteam/bookrec/core"
)

// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//   var s core.Store = NewMemoryStore()
//   var disabled core.Store = NoopStore{}

// NoopStore 永远 miss，用于关闭缓存。
// 缓存只是加速手段，关闭后推荐结果不变，只影响延迟。
type NoopStore struct{}

func (NoopStore) Name() string { return "noop" }

func (NoopStore) Get(context.Context, string) ([]byte, error) {
	return nil, core.ErrStoreNotFound
}

func (NoopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopStore) Delete(context.Context, string) error { return nil }

func (NoopStore) Close() error { return nil }

var _ core.Store = NoopStore{}
