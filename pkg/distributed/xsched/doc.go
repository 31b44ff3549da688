// Package xsched 把一个普通函数包装成租约守护的定时任务。
//
// # 设计理念
//
// 多副本部署下，同一个定时任务会被每个副本的触发器同时唤起。
// Guard 在包装期为任务铸造一个以任务名为资源、带 TTL 的租约
// （见 xlease 包），每次调用前先 Acquire：
//   - 拿到租约：把任务交给运行时执行
//   - 没拿到：返回 [*TaskLockedError]，运行时把它记作软拒绝而非失败
//
// 周期触发器和任务运行时都是外部协作者：触发器只管按时调用
// Guard.Run，运行时只是一个 Submit 接收器（[Runner]）。
// [ScheduleGuard] 提供与 robfig/cron 的现成对接。
//
// # 不释放是有意的
//
// Guard 执行完成后不调用 Release，租约由 TTL 回收。这样同一 TTL
// 窗口内共同调度的两次触发都会观察到"已持有"，即使第一次早已
// 执行完毕——这正是"每 TTL 窗口至多执行一次"的语义来源。
//
// # 使用模式
//
//	factory, _ := xlease.NewRedisFactory(client)
//	guard, _ := xsched.NewGuard("nightly-report", job, 30*time.Second,
//	    factory, xsched.GoRunner{})
//
//	err := guard.Run(ctx)
//	var locked *xsched.TaskLockedError
//	if errors.As(err, &locked) {
//	    // 其他副本已执行，locked.TTL 是合理的重试地平线
//	}
package xsched
