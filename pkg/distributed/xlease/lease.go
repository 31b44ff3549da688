package xlease

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// =============================================================================
// 核心契约
// =============================================================================

// Resource 标识被锁定的临界区。
//
// Name 是临界区的外部标识，跨进程、跨后端保持稳定；
// 名字相同即视为竞争同一资源。
type Resource struct {
	// Name 资源名，非空且全部为可打印字符。
	Name string
}

// NewResource 创建并校验资源标识。
//
// 名字去除首尾空白后必须非空，且所有字符可打印，
// 否则返回 [ErrEmptyResource] 或 [ErrInvalidResource]。
func NewResource(name string) (Resource, error) {
	if strings.TrimSpace(name) == "" {
		return Resource{}, ErrEmptyResource
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return Resource{}, ErrInvalidResource
		}
	}
	return Resource{Name: name}, nil
}

// Lease 表示单个后端上的一个命名租约。
//
// 一个 Lease 句柄对应一个逻辑持有者，不支持多个调用方并发共用；
// 跨进程的竞争完全通过后端原语解决。
//
// # 生命周期
//
// 工厂铸造出的租约处于未持有状态。Acquire 成功后进入持有状态，并保证
// 至少 TTL 时间内同一资源在该后端上不会被第二个获取者拿到。
// Release 显式释放；若持有者崩溃，墙钟到达 TTL 后后端自动回收，
// 此后其他获取者可以成功。释放后允许再次 Acquire。
type Lease interface {
	// Acquire 获取租约。严格非阻塞，不等待不排队。
	//
	// 竞争失败、后端不可用等一切未拿到锁的情况都返回
	// [ErrFailedToAcquire]（可能包装底层原因），调用方视为
	// "他人持有，稍后再试"。
	Acquire(ctx context.Context) error

	// Release 释放租约。不是幂等操作。
	//
	// 释放一个未持有的租约（含已过期、已被释放）返回
	// [ErrFailedToRelease]。释放失败时后端状态未知，最终由 TTL 回收。
	Release(ctx context.Context) error

	// Held 返回租约此刻是否处于持有且未过期状态。
	//
	// 无副作用，可能产生一次后端往返；往返失败时返回传输层错误。
	Held(ctx context.Context) (bool, error)

	// Resource 返回租约绑定的资源。
	Resource() Resource

	// TTL 返回租约的生命周期。
	TTL() time.Duration
}

// Factory 按 (Resource, TTL) 铸造 Lease。
//
// 工厂是廉价、无状态的（仅持有后端客户端引用），可被任意数量的
// 并发调用方共享。不同工厂铸造的租约彼此独立：竞争以后端为界，
// 直到用 [NewQuorumFactory] 组合。
type Factory interface {
	// NewLease 铸造一个绑定 (resource, ttl) 的租约。
	//
	// resource 和 ttl 在铸造后不可变。ttl 必须为正，
	// 否则返回 [ErrInvalidTTL]。
	NewLease(resource Resource, ttl time.Duration) (Lease, error)
}

// validateLease 校验铸造参数的公共逻辑。
func validateLease(resource Resource, ttl time.Duration) error {
	if _, err := NewResource(resource.Name); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
