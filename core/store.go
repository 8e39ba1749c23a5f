package core

import (
	"context"
	"time"
)

// Store 是缓存存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 值为字节串，编码由上层（cache）负责
//   - 过期条目视为不存在，Get 返回 ErrStoreNotFound
//
// 实现：
//   - store.MemoryStore（进程内，带 TTL）
//   - store.RedisStore（多进程共享）
//   - store.NoopStore（禁用缓存，永远 miss）
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值；不存在或已过期返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 无条件覆盖写入；ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// Close 关闭连接/释放资源
	Close() error
}
