package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/bookrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// ItemFilter 是目录物品的准入表达式，使用 CEL (Common Expression Language) 实现。
// 用于在训练集构建、视觉索引构建时进一步收窄物品范围。
//
// 可用字段（item.xxx）：
//   - id / kind / title / author / genre / category / description / image_ref
//   - available（bool）、has_image（bool）、has_visual_features（bool）
//
// 示例：
//   - `item.kind == "book"`
//   - `item.genre != "Magazine" && item.has_image`
//   - `item.category in ["Fiction", "History"]`
//
// 编译后的程序线程安全，可在并发请求中复用。
type ItemFilter struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；空表达式返回 nil（表示不过滤）。
func Compile(expr string) (*ItemFilter, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if ot := ast.OutputType(); ot != nil && !ot.IsExactType(cel.BoolType) && !ot.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %v", ot)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &ItemFilter{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (f *ItemFilter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match 判断物品是否通过表达式；nil filter 总是通过。
func (f *ItemFilter) Match(item *core.CatalogItem) (bool, error) {
	if f == nil {
		return true, nil
	}
	if item == nil {
		return false, nil
	}

	out, _, err := f.prg.Eval(map[string]any{"item": buildInput(item)})
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(item *core.CatalogItem) map[string]any {
	return map[string]any{
		"id":                  item.ID,
		"kind":                string(item.Kind),
		"title":               item.Title,
		"author":              item.Author,
		"genre":               item.Genre,
		"category":            item.Category,
		"description":         item.Description,
		"image_ref":           item.ImageRef,
		"available":           item.Available,
		"has_image":           item.ImageRef != "",
		"has_visual_features": item.HasVisualFeatures(),
	}
}
