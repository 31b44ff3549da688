package xlease

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// =============================================================================
// 法定数工厂
// =============================================================================

// QuorumFactory 把 N 个子工厂组合成一个多数派租约工厂。
//
// 组合租约在同一 (resource, ttl) 上向每个子工厂铸造一个子租约；
// 只要严格多数（N/2+1）的子后端各自提供互斥，组合就提供互斥——
// 两个并发获取者的多数派必然相交。少数子后端故障不影响可用性。
//
// 用法：
//
//	factory, err := xlease.NewQuorumFactory([]xlease.Factory{redisFactory, zkFactory, mongoFactory})
type QuorumFactory struct {
	factories []Factory
	log       Logger
	metrics   *leaseMetrics
}

// NewQuorumFactory 创建法定数租约工厂。
// 子工厂按传入顺序参与每次获取/释放。至少需要一个子工厂，
// 否则返回 [ErrNoFactories]；任一子工厂为 nil 返回 [ErrNilClient]。
func NewQuorumFactory(factories []Factory, opts ...FactoryOption) (*QuorumFactory, error) {
	if len(factories) == 0 {
		return nil, ErrNoFactories
	}
	for i, f := range factories {
		if f == nil {
			return nil, fmt.Errorf("%w: factory at index %d is nil", ErrNilClient, i)
		}
	}
	cfg := applyFactoryOptions(opts)
	return &QuorumFactory{
		factories: factories,
		log:       cfg.Logger,
		metrics:   newLeaseMetrics(cfg.Meter),
	}, nil
}

// NewLease 铸造一个法定数租约：向每个子工厂铸造同参子租约。
// 任一子工厂铸造失败则整体失败。
func (f *QuorumFactory) NewLease(resource Resource, ttl time.Duration) (Lease, error) {
	if err := validateLease(resource, ttl); err != nil {
		return nil, err
	}
	subs := make([]Lease, 0, len(f.factories))
	for _, sub := range f.factories {
		lease, err := sub.NewLease(resource, ttl)
		if err != nil {
			return nil, err
		}
		subs = append(subs, lease)
	}
	return &QuorumLease{
		factory:  f,
		resource: resource,
		ttl:      ttl,
		subs:     subs,
	}, nil
}

// healthChecker 具备健康检查能力的子工厂。
// 本包的全部工厂都实现它；第三方 Factory 实现可以不提供。
type healthChecker interface {
	Health(ctx context.Context) error
}

// Health 健康检查：逐个探测具备健康检查能力的子工厂，返回第一个错误。
func (f *QuorumFactory) Health(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	for _, sub := range f.factories {
		hc, ok := sub.(healthChecker)
		if !ok {
			continue
		}
		if err := hc.Health(ctx); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// 法定数租约
// =============================================================================

// QuorumLease N 个子租约上的多数派组合。
//
// 组合租约持有 iff 严格多于 ⌊N/2⌋ 个子租约持有。子租约之间没有原子性，
// 但获取在返回前不发布任何状态，调用方观察不到中间态。
type QuorumLease struct {
	factory  *QuorumFactory
	resource Resource
	ttl      time.Duration
	subs     []Lease
}

// majority 返回多数派阈值 ⌊N/2⌋+1。
func (l *QuorumLease) majority() int {
	return len(l.subs)/2 + 1
}

// Acquire 获取组合租约。
//
// 依次尝试每个子租约（任何错误都计为失败）。达到多数派即成功；
// 否则尽力释放已获取的子租约（忽略单个释放错误）并返回
// [ErrFailedToAcquire]——不回滚会让本次的少数派残留到 TTL，
// 把后来者的可用多数派越啃越小。
func (l *QuorumLease) Acquire(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordAcquire(ctx, "quorum", err) }()

	acquired := make([]Lease, 0, len(l.subs))
	for _, sub := range l.subs {
		if aerr := sub.Acquire(ctx); aerr != nil {
			l.factory.log.Debug(ctx, "xlease: quorum sub-acquire failed for %q: %v", l.resource.Name, aerr)
			continue
		}
		acquired = append(acquired, sub)
	}
	if len(acquired) >= l.majority() {
		return nil
	}

	for _, sub := range acquired {
		if rerr := sub.Release(ctx); rerr != nil {
			l.factory.log.Warn(ctx, "xlease: quorum rollback release failed for %q: %v", l.resource.Name, rerr)
		}
	}
	return ErrFailedToAcquire
}

// Release 释放组合租约，两阶段、有界重试。
//
// 第一阶段对每个子租约调用 Release 并计数；达到多数派即成功。
// 未达到时组合处于未知状态：恢复阶段尝试重新 Acquire 每个子租约，
// 把组合拉回已知的持有态，然后把释放再试恰好一次。第二次仍未达到
// 多数派则返回 [ErrFailedToRelease]，由调用方决断，TTL 最终兜底。
// 重试有界是有意为之，避免恢复风暴。
func (l *QuorumLease) Release(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordRelease(ctx, "quorum", err) }()

	attempt := func() error {
		released := 0
		var errs []error
		for _, sub := range l.subs {
			if rerr := sub.Release(ctx); rerr != nil {
				errs = append(errs, rerr)
				continue
			}
			released++
		}
		if released >= l.majority() {
			return nil
		}
		return fmt.Errorf("%w: %d/%d released: %w",
			errUnknownStatus, released, len(l.subs), errors.Join(errs...))
	}

	// retry-go 在最后一次失败后同样触发 OnRetry；恢复只在两次释放之间做一次。
	recovered := false
	recoverHeld := func(_ uint, rerr error) {
		if recovered {
			return
		}
		recovered = true
		l.factory.log.Warn(ctx, "xlease: quorum release below majority for %q, recovering: %v", l.resource.Name, rerr)
		for _, sub := range l.subs {
			if aerr := sub.Acquire(ctx); aerr != nil {
				// 恢复失败意味着不确定态，唯一的出路就是下面的第二次释放。
				l.factory.log.Warn(ctx, "xlease: quorum recover acquire failed for %q: %v", l.resource.Name, aerr)
			}
		}
	}

	rerr := retry.New(
		retry.Attempts(2),
		retry.Delay(time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(recoverHeld),
	).Do(attempt)
	if rerr != nil {
		return fmt.Errorf("%w: %w", ErrFailedToRelease, rerr)
	}
	return nil
}

// Held 返回组合租约此刻是否持有：严格多于 ⌊N/2⌋ 个子租约持有。
// 子租约的状态查询错误计为未持有。
func (l *QuorumLease) Held(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	held := 0
	for _, sub := range l.subs {
		ok, err := sub.Held(ctx)
		if err != nil {
			l.factory.log.Debug(ctx, "xlease: quorum sub-status failed for %q: %v", l.resource.Name, err)
			continue
		}
		if ok {
			held++
		}
	}
	return held > len(l.subs)/2, nil
}

// Resource 返回租约绑定的资源。
func (l *QuorumLease) Resource() Resource { return l.resource }

// TTL 返回租约的生命周期。
func (l *QuorumLease) TTL() time.Duration { return l.ttl }

// Subs 返回子租约序列（与子工厂同序）。
// 用于测试和诊断；修改返回的切片是未定义行为。
func (l *QuorumLease) Subs() []Lease {
	return l.subs
}

// 确保 QuorumFactory 实现了 Factory 接口
var _ Factory = (*QuorumFactory)(nil)

// 确保 QuorumLease 实现了 Lease 接口
var _ Lease = (*QuorumLease)(nil)
