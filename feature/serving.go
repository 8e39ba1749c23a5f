package feature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/metrics"
	"github.com/rushteam/bookrec/pkg/conv"
)

// 推理协议
const (
	ProtocolTorchServe = "torchserve"
	ProtocolKServeV2   = "kserve_v2"
)

// ServingEmbedder 通过 REST 调用远程部署的预训练 CNN（如 VGG16 去掉分类头）获取图片嵌入。
//
// TorchServe：
//   - POST /predictions/{model_name}
//   - 请求：{"data": [[[b, g, r], ...], ...]}，即 H×W×3 张量
//   - 响应：任意嵌套的数值数组，按行优先展平为向量
//
// KServe V2（Open Inference Protocol）：
//   - POST /v2/models/{model_name}[/versions/{version}]/infer
//   - 请求：{"inputs": [{"name": "input0", "shape": [1, H, W, 3], "datatype": "FP32", "data": [...]}]}
//   - 响应：{"outputs": [{"data": [...]}]}，取第一个输出
//
// 输入按 caffe 约定预处理：BGR 通道、减去通道均值、不做缩放。
// 调用被熔断器保护，模型服务持续失败时快速失败，不拖慢请求路径。
type ServingEmbedder struct {
	// Endpoint 服务根地址，如 "http://localhost:8080"
	Endpoint string
	// ModelName 模型名称
	ModelName string
	// ModelVersion 模型版本（可选）
	ModelVersion string
	// Protocol 推理协议，默认 torchserve
	Protocol string
	// Dim 期望的输出维度，0 表示不校验
	Dim int
	// Timeout 请求超时
	Timeout time.Duration

	size       int
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]float64]
	logger     zerolog.Logger
}

// ServingOption ServingEmbedder 配置选项
type ServingOption func(*ServingEmbedder)

// WithServingProtocol 设置推理协议
func WithServingProtocol(protocol string) ServingOption {
	return func(e *ServingEmbedder) {
		e.Protocol = protocol
	}
}

// WithServingVersion 设置模型版本
func WithServingVersion(version string) ServingOption {
	return func(e *ServingEmbedder) {
		e.ModelVersion = version
	}
}

// WithServingTimeout 设置超时时间
func WithServingTimeout(timeout time.Duration) ServingOption {
	return func(e *ServingEmbedder) {
		e.Timeout = timeout
	}
}

// WithServingDimension 设置期望的输出维度
func WithServingDimension(dim int) ServingOption {
	return func(e *ServingEmbedder) {
		e.Dim = dim
	}
}

// WithServingHTTPClient 设置自定义 HTTP 客户端
func WithServingHTTPClient(client *http.Client) ServingOption {
	return func(e *ServingEmbedder) {
		e.httpClient = client
	}
}

// WithServingLogger 设置日志
func WithServingLogger(logger zerolog.Logger) ServingOption {
	return func(e *ServingEmbedder) {
		e.logger = logger
	}
}

// NewServingEmbedder 创建远程嵌入客户端。
func NewServingEmbedder(endpoint, modelName string, opts ...ServingOption) *ServingEmbedder {
	e := &ServingEmbedder{
		Endpoint:  endpoint,
		ModelName: modelName,
		Protocol:  ProtocolTorchServe,
		Timeout:   30 * time.Second,
		size:      core.VisualInputSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{Timeout: e.Timeout}
	}
	e.logger = e.logger.With().Str("component", "serving_embedder").Logger()
	e.cb = e.newBreaker()
	return e
}

func (e *ServingEmbedder) newBreaker() *gobreaker.CircuitBreaker[[]float64] {
	name := "embedder-" + e.ModelName
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (e *ServingEmbedder) Name() string { return "serving:" + e.ModelName }

// Dimension 返回配置的输出维度，未配置时为 0。
func (e *ServingEmbedder) Dimension() int { return e.Dim }

// Embed 调用模型服务计算嵌入向量。
func (e *ServingEmbedder) Embed(ctx context.Context, img image.Image) ([]float64, error) {
	tensor := CaffeTensor(Normalize(img, e.size))

	vec, err := e.cb.Execute(func() ([]float64, error) {
		return e.infer(ctx, tensor)
	})
	name := e.cb.Name()
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
		return nil, fmt.Errorf("embedder %s: %w", name, err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		return nil, err
	}

	if e.Dim > 0 && len(vec) != e.Dim {
		return nil, core.WrapError(core.ErrDimensionMismatch,
			fmt.Errorf("embedder returned %d values, want %d", len(vec), e.Dim))
	}
	return vec, nil
}

func (e *ServingEmbedder) infer(ctx context.Context, tensor [][][3]float64) ([]float64, error) {
	var (
		url  string
		body any
	)
	switch e.Protocol {
	case ProtocolKServeV2:
		url = fmt.Sprintf("%s/v2/models/%s", e.Endpoint, e.ModelName)
		if e.ModelVersion != "" {
			url = fmt.Sprintf("%s/versions/%s", url, e.ModelVersion)
		}
		url += "/infer"
		h := len(tensor)
		w := 0
		if h > 0 {
			w = len(tensor[0])
		}
		data := make([]float64, 0, h*w*3)
		for _, row := range tensor {
			for _, px := range row {
				data = append(data, px[0], px[1], px[2])
			}
		}
		body = map[string]any{
			"inputs": []map[string]any{{
				"name":     "input0",
				"shape":    []int{1, h, w, 3},
				"datatype": "FP32",
				"data":     data,
			}},
		}
	default:
		url = fmt.Sprintf("%s/predictions/%s", e.Endpoint, e.ModelName)
		if e.ModelVersion != "" {
			url = fmt.Sprintf("%s/%s", url, e.ModelVersion)
		}
		body = map[string]any{"data": tensor}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", e.Protocol, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s error: status=%d, body=%s", e.Protocol, resp.StatusCode, string(respBody))
	}

	return e.parse(respBody)
}

func (e *ServingEmbedder) parse(body []byte) ([]float64, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	// KServe V2 与部分 TorchServe handler 会把结果包在对象里
	if obj, ok := raw.(map[string]any); ok {
		switch {
		case obj["outputs"] != nil:
			outs, _ := obj["outputs"].([]any)
			if len(outs) == 0 {
				return nil, fmt.Errorf("empty outputs in response")
			}
			first, _ := outs[0].(map[string]any)
			raw = first["data"]
		case obj["embedding"] != nil:
			raw = obj["embedding"]
		case obj["predictions"] != nil:
			raw = obj["predictions"]
		default:
			return nil, fmt.Errorf("unrecognized response: %s", string(body))
		}
	}

	vec, err := conv.FlattenFloat64(raw)
	if err != nil {
		return nil, fmt.Errorf("flatten response: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return vec, nil
}

var _ core.ImageEmbedder = (*ServingEmbedder)(nil)
