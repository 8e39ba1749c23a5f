// Package catalog 提供 core.Catalog 的实现：内存版用于测试与离线工具，SQLite 版读取线上目录库。
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rushteam/bookrec/core"
)

// MemoryCatalog 是内存实现的目录，按插入顺序列举。
type MemoryCatalog struct {
	mu    sync.RWMutex
	items []*core.CatalogItem
	index map[string]int
}

// NewMemoryCatalog 创建内存目录。
func NewMemoryCatalog(items ...*core.CatalogItem) *MemoryCatalog {
	c := &MemoryCatalog{index: make(map[string]int)}
	for _, it := range items {
		c.Put(it)
	}
	return c
}

// Put 新增或替换物品（同 Kind + ID 视为同一物品，替换时保留原位置）。
func (c *MemoryCatalog) Put(it *core.CatalogItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := cloneItem(it)
	if i, ok := c.index[it.Ref()]; ok {
		c.items[i] = cp
		return
	}
	c.index[it.Ref()] = len(c.items)
	c.items = append(c.items, cp)
}

// Remove 删除物品。
func (c *MemoryCatalog) Remove(kind core.Kind, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref := (&core.CatalogItem{Kind: kind, ID: id}).Ref()
	i, ok := c.index[ref]
	if !ok {
		return
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, ref)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].Ref()] = j
	}
}

func (c *MemoryCatalog) ListItems(ctx context.Context, filter core.ListFilter) ([]*core.CatalogItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*core.CatalogItem, 0, len(c.items))
	for _, it := range c.items {
		if !filter.Accepts(it) {
			continue
		}
		out = append(out, cloneItem(it))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (c *MemoryCatalog) GetItem(ctx context.Context, kind core.Kind, id int64) (*core.CatalogItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[(&core.CatalogItem{Kind: kind, ID: id}).Ref()]
	if !ok {
		return nil, core.WrapError(core.ErrItemNotFound, fmt.Errorf("%s %d", kind, id))
	}
	return cloneItem(c.items[i]), nil
}

func (c *MemoryCatalog) SaveVisualFeatures(ctx context.Context, kind core.Kind, id int64, vector []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[(&core.CatalogItem{Kind: kind, ID: id}).Ref()]
	if !ok {
		return core.WrapError(core.ErrItemNotFound, fmt.Errorf("%s %d", kind, id))
	}
	if c.items[i].HasVisualFeatures() {
		return core.WrapError(core.ErrAlreadyPresent, fmt.Errorf("%s %d", kind, id))
	}
	c.items[i].VisualFeatures = append([]float64(nil), vector...)
	return nil
}

func cloneItem(it *core.CatalogItem) *core.CatalogItem {
	cp := *it
	if it.VisualFeatures != nil {
		cp.VisualFeatures = append([]float64(nil), it.VisualFeatures...)
	}
	return &cp
}

var _ core.Catalog = (*MemoryCatalog)(nil)
