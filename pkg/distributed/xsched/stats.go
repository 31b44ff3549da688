package xsched

import "sync/atomic"

// Stats 守卫的执行统计。
// 线程安全，可在任务执行期间安全读取。
type Stats struct {
	runs     atomic.Int64 // 成功执行次数
	locked   atomic.Int64 // 因租约被占而跳过的次数
	failures atomic.Int64 // 运行时返回错误的次数
}

// Runs 返回成功执行次数。
func (s *Stats) Runs() int64 { return s.runs.Load() }

// Locked 返回因租约被占而跳过的次数。
func (s *Stats) Locked() int64 { return s.locked.Load() }

// Failures 返回运行时返回错误的次数。
func (s *Stats) Failures() int64 { return s.failures.Load() }
