package xlease_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/awol-linux/ha-task-locker/pkg/distributed/xlease"
)

// Example 演示单后端租约的基本用法。
// 这里用进程内实现演示；生产环境换成 NewRedisFactory 等后端工厂。
func Example() {
	factory := xlease.NewMemoryFactory()
	res, _ := xlease.NewResource("nightly-report")

	lease, _ := factory.NewLease(res, 30*time.Second)
	other, _ := factory.NewLease(res, 30*time.Second)

	ctx := context.Background()

	if err := lease.Acquire(ctx); err != nil {
		fmt.Println("unexpected:", err)
	}
	fmt.Println("first acquire ok")

	// 同一资源的第二个获取者被立即拒绝，不排队
	if err := other.Acquire(ctx); errors.Is(err, xlease.ErrFailedToAcquire) {
		fmt.Println("second acquire refused")
	}

	if err := lease.Release(ctx); err != nil {
		fmt.Println("unexpected:", err)
	}
	fmt.Println("released")

	// Output:
	// first acquire ok
	// second acquire refused
	// released
}

// ExampleWith 演示作用域式获取：进入时获取、退出时释放。
func ExampleWith() {
	factory := xlease.NewMemoryFactory()
	res, _ := xlease.NewResource("daily-sync")
	lease, _ := factory.NewLease(res, time.Minute)

	err := xlease.With(context.Background(), lease, func(ctx context.Context) error {
		fmt.Println("critical section")
		return nil
	})
	fmt.Println("err:", err)

	// Output:
	// critical section
	// err: <nil>
}

// ExampleNewQuorumFactory 演示多数派组合：少数后端故障不影响互斥。
func ExampleNewQuorumFactory() {
	factory, _ := xlease.NewQuorumFactory([]xlease.Factory{
		xlease.NewMemoryFactory(),
		xlease.NewMemoryFactory(),
		xlease.NewMemoryFactory(),
	})
	res, _ := xlease.NewResource("cleanup")

	lease, _ := factory.NewLease(res, time.Minute)
	ctx := context.Background()

	if err := lease.Acquire(ctx); err == nil {
		fmt.Println("quorum acquired")
	}
	held, _ := lease.Held(ctx)
	fmt.Println("held:", held)

	if err := lease.Release(ctx); err == nil {
		fmt.Println("quorum released")
	}

	// Output:
	// quorum acquired
	// held: true
	// quorum released
}
