package xlease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

// zkTimeLayout znode 负载中过期时间的编码格式（本地时间，秒级精度）。
const zkTimeLayout = "2006-01-02T15:04:05"

// zkTasksRoot 所有租约 znode 的公共祖先。
const zkTasksRoot = "/tasks"

// zkConn 抽象 ZooKeeper 客户端操作，*zk.Conn 实现此接口。
// 接口化是为了在单元测试中注入内存实现，线上始终使用 *zk.Conn。
type zkConn interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Get(path string) ([]byte, *zk.Stat, error)
	Set(path string, data []byte, version int32) (*zk.Stat, error)
	Delete(path string, version int32) error
	Exists(path string) (bool, *zk.Stat, error)
}

// =============================================================================
// ZooKeeper 工厂
// =============================================================================

// ZooKeeperFactory 基于 ZooKeeper 的租约工厂。
//
// 每个资源对应一个 znode /tasks/<name>，负载为当前租约的过期时间
// （本地时间 ISO-8601，秒级精度），空负载表示未持有。
// 读-改-写序列携带 znode 版本号，两个并发获取者不可能同时成功。
//
// 协议在负载中比较墙钟时间，要求各获取方时钟偏差远小于 TTL。
// 秒级编码精度决定了不支持低于 1 秒的 TTL。
type ZooKeeperFactory struct {
	conn     zkConn
	now      func() time.Time
	metrics  *leaseMetrics
	rootOnce sync.Once
	rootErr  error
}

// NewZooKeeperFactory 创建 ZooKeeper 租约工厂。
//
// conn 必须是已建立会话的 *zk.Conn；工厂不管理连接生命周期。
// conn 为 nil 时返回 [ErrNilClient]。
func NewZooKeeperFactory(conn *zk.Conn, opts ...FactoryOption) (*ZooKeeperFactory, error) {
	if conn == nil {
		return nil, ErrNilClient
	}
	return newZooKeeperFactory(conn, opts...), nil
}

// newZooKeeperFactory 内部构造，测试通过此入口注入内存 conn。
func newZooKeeperFactory(conn zkConn, opts ...FactoryOption) *ZooKeeperFactory {
	cfg := applyFactoryOptions(opts)
	return &ZooKeeperFactory{
		conn:    conn,
		now:     cfg.Now,
		metrics: newLeaseMetrics(cfg.Meter),
	}
}

// NewLease 铸造一个 ZooKeeper 租约。
// 首次铸造时确保祖先 /tasks 存在。
// ttl 低于 1 秒返回 [ErrInvalidTTL]（负载为秒级精度）。
func (f *ZooKeeperFactory) NewLease(resource Resource, ttl time.Duration) (Lease, error) {
	if err := validateLease(resource, ttl); err != nil {
		return nil, err
	}
	if ttl < time.Second {
		return nil, fmt.Errorf("%w: zookeeper payload has second precision, ttl %s too short", ErrInvalidTTL, ttl)
	}
	f.rootOnce.Do(func() {
		f.rootErr = f.ensurePath(zkTasksRoot)
	})
	if f.rootErr != nil {
		return nil, f.rootErr
	}
	return &ZooKeeperLease{
		factory:  f,
		resource: resource,
		ttl:      ttl,
		path:     zkTasksRoot + "/" + resource.Name,
	}, nil
}

// Health 健康检查，探测根节点可达。
func (f *ZooKeeperFactory) Health(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	_, _, err := f.conn.Exists("/")
	return err
}

// ensurePath 创建节点，已存在视为成功。
func (f *ZooKeeperFactory) ensurePath(path string) error {
	_, err := f.conn.Create(path, nil, 0, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return err
	}
	return nil
}

// =============================================================================
// ZooKeeper 租约
// =============================================================================

// ZooKeeperLease 单个 znode 上的租约。
type ZooKeeperLease struct {
	factory  *ZooKeeperFactory
	resource Resource
	ttl      time.Duration
	path     string
}

// Acquire 获取租约。
//
// 确保节点存在后读取当前负载：若负载非空且解码出的过期时间在未来，
// 说明他人持有，返回 [ErrFailedToAcquire]；否则以读到的版本号写入
// now+ttl。版本不匹配（被并发获取者抢先）同样返回 [ErrFailedToAcquire]。
// 无法解码的负载视为可回收的陈旧状态。
func (l *ZooKeeperLease) Acquire(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordAcquire(ctx, "zookeeper", err) }()

	if err := l.factory.ensurePath(l.path); err != nil {
		return fmt.Errorf("%w: zookeeper ensure path: %w", ErrFailedToAcquire, err)
	}

	now := l.factory.now()
	data, stat, gerr := l.factory.conn.Get(l.path)
	if gerr != nil {
		return fmt.Errorf("%w: zookeeper get: %w", ErrFailedToAcquire, gerr)
	}
	if len(data) > 0 {
		expiry, perr := time.ParseInLocation(zkTimeLayout, string(data), time.Local)
		if perr == nil && expiry.After(now) {
			return ErrFailedToAcquire
		}
	}

	payload := now.Add(l.ttl).Format(zkTimeLayout)
	if _, serr := l.factory.conn.Set(l.path, []byte(payload), stat.Version); serr != nil {
		if errors.Is(serr, zk.ErrBadVersion) {
			return ErrFailedToAcquire
		}
		return fmt.Errorf("%w: zookeeper set: %w", ErrFailedToAcquire, serr)
	}
	return nil
}

// Release 释放租约：删除 znode。
// 节点不存在（从未持有或已被释放）返回 [ErrFailedToRelease]。
func (l *ZooKeeperLease) Release(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordRelease(ctx, "zookeeper", err) }()

	if derr := l.factory.conn.Delete(l.path, -1); derr != nil {
		if errors.Is(derr, zk.ErrNoNode) {
			return ErrFailedToRelease
		}
		return fmt.Errorf("%w: zookeeper delete: %w", ErrFailedToRelease, derr)
	}
	return nil
}

// Held 返回租约此刻是否持有：负载非空且解码出的过期时间在未来。
func (l *ZooKeeperLease) Held(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	data, _, err := l.factory.conn.Get(l.path)
	if errors.Is(err, zk.ErrNoNode) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	expiry, perr := time.ParseInLocation(zkTimeLayout, string(data), time.Local)
	if perr != nil {
		return false, nil
	}
	return expiry.After(l.factory.now()), nil
}

// Resource 返回租约绑定的资源。
func (l *ZooKeeperLease) Resource() Resource { return l.resource }

// TTL 返回租约的生命周期。
func (l *ZooKeeperLease) TTL() time.Duration { return l.ttl }

// 确保 ZooKeeperFactory 实现了 Factory 接口
var _ Factory = (*ZooKeeperFactory)(nil)

// 确保 ZooKeeperLease 实现了 Lease 接口
var _ Lease = (*ZooKeeperLease)(nil)
