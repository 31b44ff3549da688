package xlease

import (
	"context"
	"sync"
	"time"
)

// MemoryFactory 进程内租约工厂。
//
// 用互斥表实现同一契约，竞争范围限于同一个工厂实例：
// 适用于测试和单副本部署的降级场景。不同工厂实例彼此独立。
type MemoryFactory struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	now     func() time.Time
	metrics *leaseMetrics
}

// NewMemoryFactory 创建进程内租约工厂。
func NewMemoryFactory(opts ...FactoryOption) *MemoryFactory {
	cfg := applyFactoryOptions(opts)
	return &MemoryFactory{
		expiry:  make(map[string]time.Time),
		now:     cfg.Now,
		metrics: newLeaseMetrics(cfg.Meter),
	}
}

// NewLease 铸造一个进程内租约。
func (f *MemoryFactory) NewLease(resource Resource, ttl time.Duration) (Lease, error) {
	if err := validateLease(resource, ttl); err != nil {
		return nil, err
	}
	return &MemoryLease{factory: f, resource: resource, ttl: ttl}, nil
}

// Health 进程内实现恒为健康。
func (f *MemoryFactory) Health(_ context.Context) error { return nil }

// MemoryLease 进程内租约。
type MemoryLease struct {
	factory  *MemoryFactory
	resource Resource
	ttl      time.Duration
}

// Acquire 获取租约。表中存在未过期条目时返回 [ErrFailedToAcquire]。
func (l *MemoryLease) Acquire(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordAcquire(ctx, "memory", err) }()

	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if exp, ok := f.expiry[l.resource.Name]; ok && exp.After(now) {
		return ErrFailedToAcquire
	}
	f.expiry[l.resource.Name] = now.Add(l.ttl)
	return nil
}

// Release 释放租约。条目不存在返回 [ErrFailedToRelease]。
func (l *MemoryLease) Release(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordRelease(ctx, "memory", err) }()

	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.expiry[l.resource.Name]; !ok {
		return ErrFailedToRelease
	}
	delete(f.expiry, l.resource.Name)
	return nil
}

// Held 返回租约此刻是否持有。
func (l *MemoryLease) Held(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	f := l.factory
	f.mu.Lock()
	defer f.mu.Unlock()

	exp, ok := f.expiry[l.resource.Name]
	return ok && exp.After(f.now()), nil
}

// Resource 返回租约绑定的资源。
func (l *MemoryLease) Resource() Resource { return l.resource }

// TTL 返回租约的生命周期。
func (l *MemoryLease) TTL() time.Duration { return l.ttl }

// 确保 MemoryFactory 实现了 Factory 接口
var _ Factory = (*MemoryFactory)(nil)

// 确保 MemoryLease 实现了 Lease 接口
var _ Lease = (*MemoryLease)(nil)
