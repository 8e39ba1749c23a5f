package core

import "context"

// Catalog 是目录协作方的领域接口，由 catalog 包实现。
// 引擎只依赖这三个操作：列举、按 ID 读取、回写视觉向量。
type Catalog interface {
	// ListItems 按 filter 列举物品，顺序即目录默认顺序（稳定）
	ListItems(ctx context.Context, filter ListFilter) ([]*CatalogItem, error)

	// GetItem 读取单个物品；不存在返回 ErrItemNotFound
	GetItem(ctx context.Context, kind Kind, id int64) (*CatalogItem, error)

	// SaveVisualFeatures 回写视觉向量。已存在向量时不覆盖，返回 ErrAlreadyPresent
	SaveVisualFeatures(ctx context.Context, kind Kind, id int64, vector []float64) error
}

// ListFilter 列举条件，零值表示不过滤。
type ListFilter struct {
	// Kinds 限定来源；为空表示全部
	Kinds []Kind

	// RequireImage 只返回带图片引用的物品
	RequireImage bool

	// RequireVisualFeatures 只返回已有视觉向量的物品
	RequireVisualFeatures bool

	// MissingVisualFeatures 只返回尚无视觉向量的物品
	MissingVisualFeatures bool

	// OnlyAvailable 过滤掉已下架的用户上架物品
	OnlyAvailable bool

	// Limit 最大返回数量，<= 0 表示不限
	Limit int
}

// Accepts 判断单个物品是否满足条件（不含 Limit），供各 Catalog 实现复用。
func (f ListFilter) Accepts(it *CatalogItem) bool {
	if it == nil {
		return false
	}
	if len(f.Kinds) > 0 {
		ok := false
		for _, k := range f.Kinds {
			if it.Kind == k {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.RequireImage && it.ImageRef == "" {
		return false
	}
	if f.RequireVisualFeatures && !it.HasVisualFeatures() {
		return false
	}
	if f.MissingVisualFeatures && it.HasVisualFeatures() {
		return false
	}
	if f.OnlyAvailable && it.Kind == KindPeer && !it.Available {
		return false
	}
	return true
}
