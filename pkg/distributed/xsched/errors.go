package xsched

import (
	"errors"
	"fmt"
	"time"
)

// 预定义错误。
var (
	// ErrNilJob 任务为空。
	ErrNilJob = errors.New("xsched: job is nil")

	// ErrNilFactory 租约工厂为空。
	ErrNilFactory = errors.New("xsched: lease factory is nil")

	// ErrNilRunner 任务运行时为空。
	ErrNilRunner = errors.New("xsched: runner is nil")
)

// TaskLockedError 任务被锁定：本次触发没有拿到租约。
//
// 这是调度层对租约层获取失败的翻译：携带 TTL 供调用方选择重试地平线。
// 任务运行时应把它当作软拒绝记录，而不是任务崩溃。
//
// 匹配方式：
//
//	var locked *xsched.TaskLockedError
//	if errors.As(err, &locked) { ... }
//
// 底层原因保留在错误链上，errors.Is(err, xlease.ErrFailedToAcquire)
// 同样成立。
type TaskLockedError struct {
	// Key 任务名（即租约的资源名）。
	Key string
	// TTL 租约生命周期；当前持有者最晚在一个 TTL 后让出。
	TTL time.Duration
	// Cause 底层的获取失败原因。
	Cause error
}

// Error 实现 error 接口。
func (e *TaskLockedError) Error() string {
	return fmt.Sprintf("xsched: task %q is locked, retry horizon %s", e.Key, e.TTL)
}

// Unwrap 返回底层的获取失败原因。
func (e *TaskLockedError) Unwrap() error {
	return e.Cause
}

// IsTaskLocked 检查是否为任务被锁定错误。
func IsTaskLocked(err error) bool {
	var locked *TaskLockedError
	return errors.As(err, &locked)
}
