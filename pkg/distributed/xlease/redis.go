package xlease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 包级预编译的 Lua 脚本，避免每次调用时重复编译
var (
	// releaseScript: 只有持有者才能删除锁（CAS-DEL）。
	// 普通 DEL 不安全：迟到的释放会删掉下一任持有者的租约。
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`)
)

// =============================================================================
// Redis 工厂
// =============================================================================

// RedisFactory 基于 Redis 的租约工厂。
//
// 使用 SET key value NX PX 原子获取，value 为每次获取生成的随机 token，
// 释放用 Lua 脚本做 CAS 删除，状态检查比较 GET 结果与 token。
// TTL 由 Redis 服务端维护，不依赖客户端时钟。
//
// 用法：
//
//	client := redis.NewClient(&redis.Options{Addr: "redis:6379"})
//	factory, err := xlease.NewRedisFactory(client)
type RedisFactory struct {
	client  redis.UniversalClient
	prefix  string
	metrics *leaseMetrics
}

// NewRedisFactory 创建 Redis 租约工厂。
//
// client 可以是 *redis.Client、*redis.ClusterClient 等 UniversalClient
// 实现，必须已连接且并发安全；工厂不管理客户端生命周期。
// client 为 nil 时返回 [ErrNilClient]。
func NewRedisFactory(client redis.UniversalClient, opts ...FactoryOption) (*RedisFactory, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	cfg := applyFactoryOptions(opts)
	return &RedisFactory{
		client:  client,
		prefix:  cfg.KeyPrefix,
		metrics: newLeaseMetrics(cfg.Meter),
	}, nil
}

// NewLease 铸造一个 Redis 租约。
func (f *RedisFactory) NewLease(resource Resource, ttl time.Duration) (Lease, error) {
	if err := validateLease(resource, ttl); err != nil {
		return nil, err
	}
	return &RedisLease{
		factory:  f,
		resource: resource,
		ttl:      ttl,
		key:      f.prefix + resource.Name,
	}, nil
}

// Health 健康检查，对 Redis 执行 PING。
func (f *RedisFactory) Health(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return f.client.Ping(ctx).Err()
}

// Client 返回底层 Redis 客户端。
func (f *RedisFactory) Client() redis.UniversalClient {
	return f.client
}

// =============================================================================
// Redis 租约
// =============================================================================

// RedisLease 单个 Redis 键上的租约。
// 一个句柄对应一个逻辑持有者，不支持并发共用。
type RedisLease struct {
	factory  *RedisFactory
	resource Resource
	ttl      time.Duration
	key      string
	token    string // 本次持有的随机 token，未持有时为空
}

// Acquire 获取租约。
//
// 每次调用生成新的 uuid token，执行 SET key token NX PX。
// SET 未生效（键已存在）或传输错误都返回 [ErrFailedToAcquire]。
func (l *RedisLease) Acquire(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordAcquire(ctx, "redis", err) }()

	token := uuid.NewString()
	ok, rerr := l.factory.client.SetNX(ctx, l.key, token, pxFromTTL(l.ttl)).Result()
	if rerr != nil {
		return fmt.Errorf("%w: redis setnx: %w", ErrFailedToAcquire, rerr)
	}
	if !ok {
		return ErrFailedToAcquire
	}
	l.token = token
	return nil
}

// Release 释放租约。
//
// Lua CAS：仅当键的当前值仍等于本次获取的 token 时删除。
// CAS 返回 0（已过期、被他人持有或从未持有）以及传输错误都返回
// [ErrFailedToRelease]。
func (l *RedisLease) Release(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordRelease(ctx, "redis", err) }()

	if l.token == "" {
		return ErrFailedToRelease
	}

	result, rerr := releaseScript.Run(ctx, l.factory.client, []string{l.key}, l.token).Int()
	if rerr != nil {
		// 传输错误时保留 token：后端状态未知，TTL 兜底
		return fmt.Errorf("%w: redis release: %w", ErrFailedToRelease, rerr)
	}
	l.token = ""
	if result == 0 {
		return ErrFailedToRelease
	}
	return nil
}

// Held 返回租约此刻是否持有：GET key 的值等于本次获取的 token。
// 过期由 Redis 删除键体现，无需本地时钟参与。
func (l *RedisLease) Held(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	if l.token == "" {
		return false, nil
	}
	val, err := l.factory.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == l.token, nil
}

// Resource 返回租约绑定的资源。
func (l *RedisLease) Resource() Resource { return l.resource }

// TTL 返回租约的生命周期。
func (l *RedisLease) TTL() time.Duration { return l.ttl }

// pxFromTTL 把 TTL 转换为 Redis PX 使用的毫秒时长。
// 向零取整到整毫秒（floor(总微秒数/1000)），但不低于 1ms，
// 保证亚秒级 TTL 不会被截断成 0 而退化为永不过期。
func pxFromTTL(ttl time.Duration) time.Duration {
	ms := ttl.Microseconds() / 1000
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// 确保 RedisFactory 实现了 Factory 接口
var _ Factory = (*RedisFactory)(nil)

// 确保 RedisLease 实现了 Lease 接口
var _ Lease = (*RedisLease)(nil)
