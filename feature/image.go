package feature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/rushteam/bookrec/core"
)

// DefaultMaxImageBytes 单张图片最大字节数
const DefaultMaxImageBytes = 10 << 20

// ImageSource 描述一张待抽取特征的图片，URL / Path / Data 三者只能有一个。
type ImageSource struct {
	URL  string
	Path string
	Data []byte
}

// SourceFromRef 根据目录中的图片引用构造 ImageSource：http(s) 前缀视为 URL，否则视为本地路径。
func SourceFromRef(ref string) ImageSource {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ImageSource{URL: ref}
	}
	return ImageSource{Path: ref}
}

// Validate 检查恰好设置了一种来源。
func (s ImageSource) Validate() error {
	n := 0
	if s.URL != "" {
		n++
	}
	if s.Path != "" {
		n++
	}
	if len(s.Data) > 0 {
		n++
	}
	if n != 1 {
		return fmt.Errorf("image source must set exactly one of url, path, data (got %d)", n)
	}
	return nil
}

// String 用于日志。
func (s ImageSource) String() string {
	switch {
	case s.URL != "":
		return s.URL
	case s.Path != "":
		return s.Path
	default:
		return fmt.Sprintf("upload(%d bytes)", len(s.Data))
	}
}

// ImageLoader 负责把 ImageSource 读成 image.Image。
// 远程抓取有硬超时，超过 MaxBytes 的图片直接拒绝。
type ImageLoader struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// ImageLoaderOption ImageLoader 配置选项
type ImageLoaderOption func(*ImageLoader)

// WithFetchTimeout 设置远程抓取超时
func WithFetchTimeout(d time.Duration) ImageLoaderOption {
	return func(l *ImageLoader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxImageBytes 设置图片大小上限
func WithMaxImageBytes(n int64) ImageLoaderOption {
	return func(l *ImageLoader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithHTTPClient 使用自定义 HTTP 客户端
func WithHTTPClient(client *http.Client) ImageLoaderOption {
	return func(l *ImageLoader) {
		l.client = client
	}
}

// NewImageLoader 创建图片加载器，默认超时 core.ImageFetchTimeout。
func NewImageLoader(opts ...ImageLoaderOption) *ImageLoader {
	l := &ImageLoader{
		timeout:  core.ImageFetchTimeout,
		maxBytes: DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.client == nil {
		l.client = &http.Client{Timeout: l.timeout}
	}
	return l
}

// Load 读取并解码图片。
func (l *ImageLoader) Load(ctx context.Context, src ImageSource) (image.Image, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	var (
		data []byte
		err  error
	)
	switch {
	case src.URL != "":
		data, err = l.fetch(ctx, src.URL)
	case src.Path != "":
		data, err = l.readFile(src.Path)
	default:
		if int64(len(src.Data)) > l.maxBytes {
			return nil, fmt.Errorf("%w: limit %d bytes", errImageTooLarge, l.maxBytes)
		}
		data = src.Data
	}
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func (l *ImageLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	// 客户端自带超时之外再挂一层 context，保证调用方传入的 ctx 没有 deadline 时也会被中断
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch image: status=%d", resp.StatusCode)
	}
	return l.readLimited(resp.Body)
}

func (l *ImageLoader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return l.readLimited(f)
}

var errImageTooLarge = errors.New("image too large")

func (l *ImageLoader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", errImageTooLarge, l.maxBytes)
	}
	return data, nil
}
