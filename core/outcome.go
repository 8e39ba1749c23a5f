package core

// Status 描述一次查询的结果类型。除 StatusOK 外都表示调用方拿到的是默认列表。
type Status string

const (
	StatusOK                 Status = "ok"
	StatusEmpty              Status = "empty"               // 计算成功但没有结果
	StatusNotFound           Status = "not_found"           // 查询物品不在模型中
	StatusFeatureUnavailable Status = "feature_unavailable" // 查询图像无法抽取特征
	StatusModelUnavailable   Status = "model_unavailable"   // 模型缺失且重训失败
	StatusCatalogUnavailable Status = "catalog_unavailable" // 目录读取失败
)

// Outcome 是查询的结构化结果说明，替代被吞掉的异常。
type Outcome struct {
	Status Status `json:"status"`

	// Reason 人类可读的降级原因，StatusOK 时为空
	Reason string `json:"reason,omitempty"`

	// Cached 结果来自 RetrievalCache
	Cached bool `json:"-"`
}

// OK 返回成功结果。
func OK() Outcome {
	return Outcome{Status: StatusOK}
}

// Degrade 返回降级结果。
func Degrade(status Status, reason string) Outcome {
	return Outcome{Status: status, Reason: reason}
}

// Degraded 结果是否为默认列表。
func (o Outcome) Degraded() bool {
	return o.Status != StatusOK
}

// OutcomeFromError 将领域错误映射为降级状态。
func OutcomeFromError(err error) Outcome {
	if err == nil {
		return OK()
	}
	domainErr := GetDomainError(err)
	if domainErr == nil {
		return Degrade(StatusModelUnavailable, err.Error())
	}
	switch domainErr.Module {
	case ModuleFeature:
		return Degrade(StatusFeatureUnavailable, err.Error())
	case ModuleCatalog:
		if domainErr.Code == ErrorCodeNotFound {
			return Degrade(StatusNotFound, err.Error())
		}
		return Degrade(StatusCatalogUnavailable, err.Error())
	default:
		return Degrade(StatusModelUnavailable, err.Error())
	}
}
