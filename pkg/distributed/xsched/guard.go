package xsched

import (
	"context"
	"time"

	"github.com/awol-linux/ha-task-locker/pkg/distributed/xlease"
)

// =============================================================================
// 守卫
// =============================================================================

// Guard 租约守护的任务。
//
// 包装期铸造一个以任务名为资源的租约，此后租约身份在守卫的生命周期内
// 固定。守卫不支持同进程内重叠调用 Run——它依赖任务运行时在单个进程内
// 串行触发；跨进程的并发完全由后端租约裁决。
type Guard struct {
	name   string
	job    Job
	ttl    time.Duration
	lease  xlease.Lease
	runner Runner
	log    Logger
	stats  *Stats
}

// GuardOption 守卫配置选项。
type GuardOption func(*Guard)

// WithGuardLogger 设置守卫的日志实现。默认标准库 log。
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.log = logger
		}
	}
}

// NewGuard 创建租约守护的任务。
//
// name 同时是任务名和租约的资源名：部署在多副本上的同名守卫
// 竞争同一个租约。factory 决定协调后端（单后端或法定数组合）。
// runner 是任务运行时接收器。
func NewGuard(name string, job Job, ttl time.Duration, factory xlease.Factory, runner Runner, opts ...GuardOption) (*Guard, error) {
	if job == nil {
		return nil, ErrNilJob
	}
	if factory == nil {
		return nil, ErrNilFactory
	}
	if runner == nil {
		return nil, ErrNilRunner
	}

	resource, err := xlease.NewResource(name)
	if err != nil {
		return nil, err
	}
	lease, err := factory.NewLease(resource, ttl)
	if err != nil {
		return nil, err
	}

	g := &Guard{
		name:   name,
		job:    job,
		ttl:    ttl,
		lease:  lease,
		runner: runner,
		log:    stdLogger{},
		stats:  &Stats{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// NewSharedGuard 创建使用进程级共享运行时的守卫。
// 除运行时来自 [DefaultRunner] 外与 [NewGuard] 相同，
// 对应"注册到环境共享接收器"的部署形态。
func NewSharedGuard(name string, job Job, ttl time.Duration, factory xlease.Factory, opts ...GuardOption) (*Guard, error) {
	return NewGuard(name, job, ttl, factory, sharedRunner{}, opts...)
}

// sharedRunner 每次 Submit 时解引用进程级共享运行时，
// 使 SetDefaultRunner 对已创建的守卫同样生效。
type sharedRunner struct{}

func (sharedRunner) Submit(ctx context.Context, name string, job Job) error {
	return DefaultRunner().Submit(ctx, name, job)
}

// Run 触发一次守护执行。
//
// 先 Acquire 租约：失败返回 [*TaskLockedError]（包装底层原因），
// 调用方把它当作"本窗口已有副本执行"的软拒绝；成功则把任务交给
// 运行时并透传其结果。
//
// 执行完成后不释放租约——释放交给 TTL。这是有意的：同一 TTL 窗口内
// 共同调度的两次触发必须都观察到"已持有"，即使第一次早已结束。
func (g *Guard) Run(ctx context.Context) error {
	if ctx == nil {
		return xlease.ErrNilContext
	}

	if err := g.lease.Acquire(ctx); err != nil {
		g.stats.locked.Add(1)
		g.log.Debug(ctx, "xsched: task %q locked: %v", g.name, err)
		return &TaskLockedError{Key: g.name, TTL: g.ttl, Cause: err}
	}

	g.log.Info(ctx, "xsched: task %q acquired lease, submitting", g.name)
	err := g.runner.Submit(ctx, g.name, g.job)
	if err != nil {
		g.stats.failures.Add(1)
		return err
	}
	g.stats.runs.Add(1)
	return nil
}

// Name 返回任务名。
func (g *Guard) Name() string { return g.name }

// TTL 返回守卫租约的生命周期。
func (g *Guard) TTL() time.Duration { return g.ttl }

// Lease 返回守卫持有的租约句柄。
// 用于诊断和测试；并发调用其方法与 Run 交错是未定义行为。
func (g *Guard) Lease() xlease.Lease { return g.lease }

// Stats 返回守卫的执行统计。
func (g *Guard) Stats() *Stats { return g.stats }
