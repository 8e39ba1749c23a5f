package cluster

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/rushteam/bookrec/core"
)

// ArtifactStore 持久化聚类产物。
type ArtifactStore interface {
	// Load 读取当前产物；不存在时返回 core.ErrModelNotFound
	Load(ctx context.Context) (*Artifact, error)

	// Save 原子发布新产物，并发读取者只会看到旧版本或新版本
	Save(ctx context.Context, a *Artifact) error

	// Exists 是否已有产物
	Exists(ctx context.Context) (bool, error)
}

// FileArtifactStore 把产物以 gzip 压缩的 JSON 保存在单一固定路径。
// 保存流程：写同目录临时文件 -> fsync -> rename，rename 在同一文件系统上是原子的。
type FileArtifactStore struct {
	Path string
}

// NewFileArtifactStore 创建文件存储。
func NewFileArtifactStore(path string) *FileArtifactStore {
	return &FileArtifactStore{Path: path}
}

func (s *FileArtifactStore) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(s.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileArtifactStore) Load(ctx context.Context) (*Artifact, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.ErrModelNotFound
		}
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, core.WrapError(core.ErrModelCorrupt, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, core.WrapError(core.ErrModelCorrupt, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, core.WrapError(core.ErrModelCorrupt, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *FileArtifactStore) Save(ctx context.Context, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp artifact file: %w", err)
	}
	// rename 成功后临时文件已不存在，Remove 返回的错误可忽略
	defer func() { _ = os.Remove(tmp.Name()) }()

	zw := gzip.NewWriter(tmp)
	if _, err := zw.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp artifact file: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp artifact file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp artifact file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp artifact file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("publishing artifact: %w", err)
	}
	return nil
}

var _ ArtifactStore = (*FileArtifactStore)(nil)
