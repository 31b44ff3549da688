package xlease

import "context"

// With 作用域式持有租约执行 body：进入时 Acquire，退出时 Release。
//
// Acquire 失败直接返回其错误，body 不执行。body 执行后（包括 panic
// 展开路径）一定会 Release；body 的错误优先返回，body 成功而释放
// 失败时返回释放错误——释放可以合法失败，所以不把它藏进析构，
// 而是浮给调用方。
//
// 用法：
//
//	err := xlease.With(ctx, lease, func(ctx context.Context) error {
//	    return doWork(ctx)
//	})
func With(ctx context.Context, lease Lease, body func(ctx context.Context) error) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if aerr := lease.Acquire(ctx); aerr != nil {
		return aerr
	}
	defer func() {
		relErr := lease.Release(ctx)
		if err == nil {
			err = relErr
		}
	}()
	return body(ctx)
}
