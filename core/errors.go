package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 可包装底层错误（Err），支持 errors.Is / errors.As
//
// 使用场景：
//   - Catalog 错误：NOT_FOUND, UNAVAILABLE, ALREADY_EXISTS
//   - Feature 错误：UNAVAILABLE, INVALID_INPUT
//   - Model 错误：NOT_FOUND, EMPTY
//   - Index 错误：INVALID_INPUT
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "UNAVAILABLE"）
	Message string // 错误消息
	Module  string // 模块名称（如 "catalog", "feature", "model"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按 Module + Code 比较，使 errors.Is(WrapError(ErrX, ...), ErrX) 成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapError 以 sentinel 的 Module/Code 包装底层错误。
func WrapError(sentinel *DomainError, err error) *DomainError {
	return &DomainError{
		Module:  sentinel.Module,
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Err:     err,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeEmpty         = "EMPTY"          // 输入集合为空
	ErrorCodeAlreadyExists = "ALREADY_EXISTS" // 资源已存在
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleCatalog = "catalog" // 目录协作方
	ModuleFeature = "feature" // 特征抽取
	ModuleModel   = "model"   // 聚类模型
	ModuleIndex   = "index"   // 视觉索引
	ModuleStore   = "store"   // 缓存存储
)

var (
	// ErrItemNotFound 目录中不存在该物品
	ErrItemNotFound = NewDomainError(ModuleCatalog, ErrorCodeNotFound, "catalog: item not found")

	// ErrAlreadyPresent 物品已有视觉向量，本次写入被忽略
	ErrAlreadyPresent = NewDomainError(ModuleCatalog, ErrorCodeAlreadyExists, "catalog: visual features already present")

	// ErrCatalogUnavailable 目录服务读写失败
	ErrCatalogUnavailable = NewDomainError(ModuleCatalog, ErrorCodeUnavailable, "catalog: unavailable")

	// ErrFeatureUnavailable 特征抽取失败（网络、文件、解码、模型）
	ErrFeatureUnavailable = NewDomainError(ModuleFeature, ErrorCodeUnavailable, "feature: unavailable")

	// ErrEmptyVocabulary 语料过滤停用词后没有任何词项
	ErrEmptyVocabulary = NewDomainError(ModuleFeature, ErrorCodeEmpty, "feature: empty vocabulary")

	// ErrModelNotFound 持久化模型不存在
	ErrModelNotFound = NewDomainError(ModuleModel, ErrorCodeNotFound, "model: artifact not found")

	// ErrModelCorrupt 持久化模型无法解析或违反不变量
	ErrModelCorrupt = NewDomainError(ModuleModel, ErrorCodeInvalidInput, "model: artifact corrupt")

	// ErrEmptyCatalog 没有可训练物品，训练为 no-op
	ErrEmptyCatalog = NewDomainError(ModuleModel, ErrorCodeEmpty, "model: no trainable items")

	// ErrDimensionMismatch 向量维度不一致
	ErrDimensionMismatch = NewDomainError(ModuleIndex, ErrorCodeInvalidInput, "index: vector dimension mismatch")

	// ErrInvalidVector 向量为空、零范数或包含 NaN/Inf
	ErrInvalidVector = NewDomainError(ModuleIndex, ErrorCodeInvalidInput, "index: invalid vector")

	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")
)

// 通用错误检查函数

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeUnavailable
	}
	return false
}

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	return errors.Is(err, ErrStoreNotFound)
}
