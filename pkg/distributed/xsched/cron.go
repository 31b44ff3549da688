package xsched

import (
	"context"

	"github.com/robfig/cron/v3"
)

// JobID 任务唯一标识，直接复用 cron.EntryID。
type JobID = cron.EntryID

// ScheduleGuard 把守卫注册到 robfig/cron 触发器。
//
// 触发器对租约层是不透明的：这里只是把 Guard.Run 适配成 cron.Job。
// [*TaskLockedError] 结果记作跳过（Debug 级日志），其他错误记 Error
// 级日志；两者都不会中断后续触发。
//
// 用法：
//
//	c := cron.New()
//	id, err := xsched.ScheduleGuard(c, "@every 30s", guard)
//	c.Start()
func ScheduleGuard(c *cron.Cron, spec string, g *Guard) (JobID, error) {
	return c.AddJob(spec, guardJob{g: g})
}

// guardJob 把 Guard 适配为 cron.Job。
type guardJob struct {
	g *Guard
}

// Run 实现 cron.Job。
func (j guardJob) Run() {
	ctx := context.Background()
	err := j.g.Run(ctx)
	switch {
	case err == nil:
	case IsTaskLocked(err):
		j.g.log.Debug(ctx, "xsched: cron tick skipped, task %q locked", j.g.name)
	default:
		j.g.log.Error(ctx, "xsched: task %q failed: %v", j.g.name, err)
	}
}

// 确保 guardJob 实现了 cron.Job 接口
var _ cron.Job = guardJob{}
