// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xlease: 可插拔分布式租约，支持 Redis、ZooKeeper、MongoDB、SQL 后端
//     以及多数派法定数组合
//   - xsched: 租约守护的定时任务包装，保证每 TTL 窗口至多执行一次
//
// 设计原则：
//   - 统一的租约契约，多后端实现可互换、可组合
//   - 获取严格非阻塞，过期由 TTL 兜底
//   - 客户端生命周期由调用方管理，工厂只做显式注入
package distributed
