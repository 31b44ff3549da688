package xsched

import (
	"context"
	"log"
	"sync"
)

// Job 任务接口。
// 实现此接口以定义任务执行逻辑。
type Job interface {
	// Run 执行任务。
	// ctx 包含超时控制和追踪信息，任务应响应 ctx.Done()。
	Run(ctx context.Context) error
}

// JobFunc 函数适配器，将普通函数转换为 [Job] 接口。
type JobFunc func(ctx context.Context) error

// Run 实现 [Job] 接口。
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runner 任务运行时接收器：守卫拿到租约后把任务交给它执行。
//
// 对 xsched 来说运行时是不透明的——可以内联执行（[GoRunner]）、
// 投递到工作池或发布到远端队列。Submit 的返回值就是本次执行的结果。
type Runner interface {
	// Submit 提交任务执行。
	// name 是任务名，用于日志和路由。
	Submit(ctx context.Context, name string, job Job) error
}

// GoRunner 内联运行时：当前进程就是 worker，Submit 同步执行任务。
type GoRunner struct{}

// Submit 同步执行任务。
func (GoRunner) Submit(ctx context.Context, _ string, job Job) error {
	return job.Run(ctx)
}

// Logger 日志接口，兼容 xlease.Logger。
// 如果不设置，使用标准库 log 输出。
type Logger interface {
	// Debug 记录调试日志
	Debug(ctx context.Context, msg string, args ...any)
	// Info 记录信息日志
	Info(ctx context.Context, msg string, args ...any)
	// Warn 记录警告日志
	Warn(ctx context.Context, msg string, args ...any)
	// Error 记录错误日志
	Error(ctx context.Context, msg string, args ...any)
}

// stdLogger 标准库 log 的最简实现，作为默认 Logger。
type stdLogger struct{}

func (stdLogger) Debug(_ context.Context, msg string, args ...any) { log.Printf("DEBUG "+msg, args...) }
func (stdLogger) Info(_ context.Context, msg string, args ...any)  { log.Printf("INFO "+msg, args...) }
func (stdLogger) Warn(_ context.Context, msg string, args ...any)  { log.Printf("WARN "+msg, args...) }
func (stdLogger) Error(_ context.Context, msg string, args ...any) { log.Printf("ERROR "+msg, args...) }

// =============================================================================
// 共享运行时
// =============================================================================

// 进程级共享运行时，NewSharedGuard 使用。默认内联执行。
var (
	defaultRunnerMu sync.RWMutex
	defaultRunner   Runner = GoRunner{}
)

// SetDefaultRunner 替换进程级共享运行时。
// runner 为 nil 时恢复为内联执行的 [GoRunner]。
//
// 应在创建共享守卫之前调用；已创建的守卫在下一次 Run 时生效。
func SetDefaultRunner(runner Runner) {
	defaultRunnerMu.Lock()
	defer defaultRunnerMu.Unlock()
	if runner == nil {
		runner = GoRunner{}
	}
	defaultRunner = runner
}

// DefaultRunner 返回进程级共享运行时。
func DefaultRunner() Runner {
	defaultRunnerMu.RLock()
	defer defaultRunnerMu.RUnlock()
	return defaultRunner
}

// 确保 GoRunner 实现了 Runner 接口
var _ Runner = GoRunner{}
