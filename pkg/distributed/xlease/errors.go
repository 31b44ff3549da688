package xlease

import "errors"

// 预定义错误。
// 使用 errors.Is 进行错误匹配，例如：
//
//	if errors.Is(err, xlease.ErrFailedToAcquire) {
//	    // 他人持有，稍后重试
//	}
var (
	// ErrFailedToAcquire 未拿到租约。
	//
	// 语义是"锁没有被取得"：竞争失败、版本冲突、后端传输错误
	// 都映射到此错误（传输错误会包装底层原因）。调用方想做的操作
	// 被拒绝，应交由任务运行时决定重试时机，租约层内部不重试。
	ErrFailedToAcquire = errors.New("xlease: failed to acquire lease")

	// ErrFailedToRelease 租约未被干净地释放。
	//
	// 包括释放未持有/已过期的租约，以及释放路径上的后端错误。
	// 返回此错误后后端状态未知，最终由 TTL 回收。
	ErrFailedToRelease = errors.New("xlease: failed to release lease")

	// ErrNilClient 客户端为空。
	// 向工厂构造函数传入 nil 客户端时返回此错误。
	ErrNilClient = errors.New("xlease: client is nil")

	// ErrNilContext 上下文为空。
	// 所有公开方法都要求传入非 nil 的 context.Context。
	ErrNilContext = errors.New("xlease: context must not be nil")

	// ErrEmptyResource 资源名为空。
	// 资源名为空字符串或仅含空白时返回此错误。
	ErrEmptyResource = errors.New("xlease: resource name must not be empty")

	// ErrInvalidResource 资源名含不可打印字符。
	ErrInvalidResource = errors.New("xlease: resource name must be printable")

	// ErrInvalidTTL 无效的 TTL。
	// TTL 必须为正；ZooKeeper 后端额外要求不低于 1 秒（秒级编码精度）。
	ErrInvalidTTL = errors.New("xlease: ttl must be positive")

	// ErrNoFactories 法定数组合缺少子工厂。
	// QuorumFactory 至少需要一个子工厂。
	ErrNoFactories = errors.New("xlease: quorum requires at least one factory")
)

// errUnknownStatus 法定数释放两阶段之间的内部信号：
// 释放未达多数派，组合租约状态未知。
//
// 设计决策: 不导出。恢复阶段之后要么收敛为干净的 Released，
// 要么以 ErrFailedToRelease 浮出；调用方永远不会匹配到此错误。
var errUnknownStatus = errors.New("xlease: quorum release status unknown")

// IsFailedToAcquire 检查是否为获取失败错误。
func IsFailedToAcquire(err error) bool {
	return errors.Is(err, ErrFailedToAcquire)
}

// IsFailedToRelease 检查是否为释放失败错误。
func IsFailedToRelease(err error) bool {
	return errors.Is(err, ErrFailedToRelease)
}
