package core

import (
	"strconv"
	"strings"
)

// Kind 区分物品的上架来源。
type Kind string

const (
	KindCatalog Kind = "book"      // 平台自营上架
	KindPeer    Kind = "user_book" // 用户（卖家）上架
)

// Valid 判断 Kind 是否为已知类型。
func (k Kind) Valid() bool {
	return k == KindCatalog || k == KindPeer
}

// CatalogItem 是引擎读取的目录物品。
// 物品的生命周期归目录服务所有；引擎只读，唯一可能回写的是 VisualFeatures。
type CatalogItem struct {
	ID          int64  `json:"id"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Genre       string `json:"genre"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`

	// ImageRef 封面图片引用：远程 URL 或本地路径，可为空
	ImageRef string `json:"image_ref,omitempty"`

	// Available 仅对 KindPeer 有意义：卖家下架后为 false
	Available bool `json:"available"`

	// VisualFeatures 预计算的视觉特征向量，长度由视觉模型决定；为空表示尚未计算
	VisualFeatures []float64 `json:"visual_features,omitempty"`
}

// Ref 返回跨 Kind 唯一的物品引用，例如 "book_12" / "user_book_3"。
func (it *CatalogItem) Ref() string {
	return string(it.Kind) + "_" + strconv.FormatInt(it.ID, 10)
}

// TextFeature 派生文本特征：category + " " + genre + " " + author。
// 该字符串不落库，每次按需计算。
func (it *CatalogItem) TextFeature() string {
	return it.Category + " " + it.Genre + " " + it.Author
}

// HasTextAttributes 判断 category / genre / author 是否都非空。
func (it *CatalogItem) HasTextAttributes() bool {
	return strings.TrimSpace(it.Category) != "" &&
		strings.TrimSpace(it.Genre) != "" &&
		strings.TrimSpace(it.Author) != ""
}

// HasVisualFeatures 判断是否已有预计算视觉向量。
func (it *CatalogItem) HasVisualFeatures() bool {
	return len(it.VisualFeatures) > 0
}

// Match 是视觉检索的一条结果。
type Match struct {
	Item       *CatalogItem `json:"item"`
	Similarity float64      `json:"similarity"`
	Kind       Kind         `json:"kind"`
}
