package xsched_test

import (
	"context"
	"fmt"
	"time"

	"github.com/awol-linux/ha-task-locker/pkg/distributed/xlease"
	"github.com/awol-linux/ha-task-locker/pkg/distributed/xsched"
)

// silentLogger 示例输出里不需要守卫自身的日志。
type silentLogger struct{}

func (silentLogger) Debug(context.Context, string, ...any) {}
func (silentLogger) Info(context.Context, string, ...any)  {}
func (silentLogger) Warn(context.Context, string, ...any)  {}
func (silentLogger) Error(context.Context, string, ...any) {}

// Example 演示守卫的"每 TTL 窗口至多执行一次"语义。
// 这里用进程内租约演示；多副本部署换成 Redis/ZooKeeper/Mongo/SQL
// 工厂或它们的法定数组合。
func Example() {
	factory := xlease.NewMemoryFactory()

	job := xsched.JobFunc(func(context.Context) error {
		fmt.Println("report generated")
		return nil
	})

	guard, _ := xsched.NewGuard("nightly-report", job, 30*time.Second,
		factory, xsched.GoRunner{}, xsched.WithGuardLogger(silentLogger{}))

	ctx := context.Background()

	// 第一次触发执行
	if err := guard.Run(ctx); err != nil {
		fmt.Println("unexpected:", err)
	}

	// 同一窗口内的第二次触发是软拒绝
	if err := guard.Run(ctx); xsched.IsTaskLocked(err) {
		fmt.Println("skipped: another replica holds the window")
	}

	// Output:
	// report generated
	// skipped: another replica holds the window
}
