// Package xlease 提供可插拔的分布式租约（互斥锁）层，用于保证同一个定时
// 任务在多副本部署下每个 TTL 窗口内至多执行一次。
//
// # 设计理念
//
// xlease 把"向某个协调后端申请一个有限生命周期的命名租约"抽象为统一契约：
//   - Lease: 单个后端上的 Acquire/Release/Held 能力
//   - Factory: 按 (Resource, TTL) 铸造 Lease 的工厂能力
//
// 工厂只持有一个已连接的后端客户端，客户端的生命周期由调用方管理，
// xlease 不负责建连、重连和关闭。
//
// # 后端实现
//
//   - RedisFactory: SET NX PX + 随机 token，Lua CAS 释放
//   - ZooKeeperFactory: znode 负载编码过期时间，版本号 CAS 写入
//   - MongoFactory: 唯一 _id 插入 + date 字段 TTL 索引兜底
//   - SQLFactory: 唯一约束行 + 获取时清扫过期行
//   - MemoryFactory: 进程内实现，用于测试和单副本降级
//   - QuorumFactory: 多数派组合，容忍少数后端故障
//
// # 核心语义
//
// Acquire 严格非阻塞：拿不到锁立即返回 [ErrFailedToAcquire]，不排队不等待，
// 由任务运行时决定下次重试时机。Release 不是幂等的：释放一个未持有
// （含已过期、已释放）的租约返回 [ErrFailedToRelease]。租约到达 TTL 后
// 由后端自动回收，崩溃的持有者最多阻塞资源一个 TTL 窗口。
//
// # 使用模式
//
//	factory, _ := xlease.NewRedisFactory(client)
//	res, _ := xlease.NewResource("nightly-report")
//	lease, _ := factory.NewLease(res, 30*time.Second)
//
//	if err := lease.Acquire(ctx); err != nil {
//	    return err // 其他副本持有，稍后重试
//	}
//	// 执行临界区...
//
// 也可以使用作用域式获取，进入时 Acquire、退出时 Release：
//
//	err := xlease.With(ctx, lease, func(ctx context.Context) error {
//	    return doWork(ctx)
//	})
//
// # 时钟依赖
//
// ZooKeeper 和 SQL 后端在负载/行中比较墙钟时间，要求各获取方的时钟偏差
// 远小于 TTL；Redis 由服务端 TTL 兜底，不受此影响。Mongo 的 TTL 索引清理
// 在服务端进行，但陈旧文档接管和 Held 判定比较的是工厂的时钟。
// 工厂支持 WithNow 注入时间源，便于测试过期语义而无需真实等待。
package xlease
