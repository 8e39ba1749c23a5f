// Package bookrec 是一个基于内容的图书推荐引擎。
//
// 两条检索路径：
//   - 文本聚类：category + genre + author 经 TF-IDF 向量化后做 k-means，同簇即相关（cluster 包）
//   - 封面相似：封面图像抽取视觉向量，与索引做余弦相似度排序，严格大于 0.5 才保留（visual 包）
//
// 两条路径都不向调用方抛错：失败时返回目录默认顺序的前 N 本，
// 原因通过 core.Outcome 返回（recommend 包）。
//
// 组件装配见 config 包，命令行入口见 cmd/bookrec。
package bookrec
