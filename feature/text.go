package feature

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/rushteam/bookrec/core"
)

// Tokenize 把文本切成小写词项：只保留由字母/数字/下划线组成、长度 >= 2 的词，
// 并去掉英文停用词。
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := englishStopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TfidfVectorizer 是 TF-IDF 文本向量化器。
//
// 词表按字典序排列；idf 使用平滑公式 ln((1+n)/(1+df)) + 1；
// Transform 输出 原始词频 × idf 后做 L2 归一化。
// Vocabulary 与 IDF 为并行数组，可直接序列化进模型文件。
type TfidfVectorizer struct {
	Vocabulary []string `json:"vocabulary"`
	IDF        []float64 `json:"idf"`

	index map[string]int
}

// NewTfidfVectorizer 从持久化状态恢复向量化器。
func NewTfidfVectorizer(vocabulary []string, idf []float64) (*TfidfVectorizer, error) {
	if len(vocabulary) != len(idf) {
		return nil, core.WrapError(core.ErrModelCorrupt,
			fmt.Errorf("vocabulary has %d terms but idf has %d weights", len(vocabulary), len(idf)))
	}
	v := &TfidfVectorizer{Vocabulary: vocabulary, IDF: idf}
	v.buildIndex()
	return v, nil
}

// Fit 在语料上拟合词表与 idf。过滤停用词后没有任何词项时返回 ErrEmptyVocabulary。
func (v *TfidfVectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return core.ErrEmptyVocabulary
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range Tokenize(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	if len(df) == 0 {
		return core.ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	n := float64(len(docs))
	idf := make([]float64, len(terms))
	for i, t := range terms {
		idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	v.Vocabulary = terms
	v.IDF = idf
	v.buildIndex()
	return nil
}

// Dimension 返回向量长度（词表大小）。
func (v *TfidfVectorizer) Dimension() int {
	return len(v.Vocabulary)
}

// Transform 把单个文档转为稠密向量；词表外的词被忽略，全部未知时返回零向量。
func (v *TfidfVectorizer) Transform(doc string) []float64 {
	if v.index == nil {
		v.buildIndex()
	}
	vec := make([]float64, len(v.Vocabulary))
	for _, tok := range Tokenize(doc) {
		if idx, ok := v.index[tok]; ok {
			vec[idx]++
		}
	}

	var norm float64
	for i, tf := range vec {
		if tf == 0 {
			continue
		}
		vec[i] = tf * v.IDF[i]
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// TransformAll 批量转换。
func (v *TfidfVectorizer) TransformAll(docs []string) [][]float64 {
	out := make([][]float64, len(docs))
	for i, d := range docs {
		out[i] = v.Transform(d)
	}
	return out
}

func (v *TfidfVectorizer) buildIndex() {
	v.index = make(map[string]int, len(v.Vocabulary))
	for i, t := range v.Vocabulary {
		v.index[t] = i
	}
}
