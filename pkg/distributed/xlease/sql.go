package xlease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// 租约表的模式和语句。占位符使用 ?（sqlite/mysql 风格）。
const (
	sqlCreateSchema = `CREATE TABLE IF NOT EXISTS resources (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	resource_name TEXT UNIQUE NOT NULL,
	expire_at     TIMESTAMP NOT NULL
)`
	sqlDropSchema = `DROP TABLE IF EXISTS resources`

	sqlSweepExpired = `DELETE FROM resources WHERE expire_at < ?`
	sqlInsertRow    = `INSERT INTO resources (resource_name, expire_at) VALUES (?, ?)`
	sqlDeleteRow    = `DELETE FROM resources WHERE resource_name = ?`
	sqlSelectExpiry = `SELECT expire_at FROM resources WHERE resource_name = ?`
)

// =============================================================================
// SQL 工厂
// =============================================================================

// SQLFactory 基于关系库的租约工厂。
//
// 单表 resources，resource_name 上的唯一约束提供互斥。获取在一个事务内
// 完成：先清扫所有过期行，再插入 (name, now+ttl)；插入失败即他人持有。
// 清扫步骤是协议的一部分——没有它，崩溃的持有者会把资源钉死到 DBA 介入。
//
// 行内比较的是墙钟时间，要求各获取方时钟偏差远小于 TTL。
//
// 模式管理是显式操作（CreateSchema/DropSchema），供测试和运维使用，
// 不在热路径上。
type SQLFactory struct {
	db      *sql.DB
	now     func() time.Time
	metrics *leaseMetrics
}

// NewSQLFactory 创建 SQL 租约工厂。
//
// db 必须已连接且并发安全；工厂不管理连接池生命周期。
// db 为 nil 时返回 [ErrNilClient]。
func NewSQLFactory(db *sql.DB, opts ...FactoryOption) (*SQLFactory, error) {
	if db == nil {
		return nil, ErrNilClient
	}
	cfg := applyFactoryOptions(opts)
	return &SQLFactory{
		db:      db,
		now:     cfg.Now,
		metrics: newLeaseMetrics(cfg.Meter),
	}, nil
}

// CreateSchema 创建租约表（幂等）。
func (f *SQLFactory) CreateSchema(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	_, err := f.db.ExecContext(ctx, sqlCreateSchema)
	return err
}

// DropSchema 删除租约表（幂等）。
func (f *SQLFactory) DropSchema(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	_, err := f.db.ExecContext(ctx, sqlDropSchema)
	return err
}

// NewLease 铸造一个 SQL 租约。
func (f *SQLFactory) NewLease(resource Resource, ttl time.Duration) (Lease, error) {
	if err := validateLease(resource, ttl); err != nil {
		return nil, err
	}
	return &SQLLease{
		factory:  f,
		resource: resource,
		ttl:      ttl,
	}, nil
}

// Health 健康检查，对连接池执行 Ping。
func (f *SQLFactory) Health(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return f.db.PingContext(ctx)
}

// DB 返回底层连接池。
func (f *SQLFactory) DB() *sql.DB {
	return f.db
}

// =============================================================================
// SQL 租约
// =============================================================================

// SQLLease 单行上的租约。
type SQLLease struct {
	factory  *SQLFactory
	resource Resource
	ttl      time.Duration
}

// Acquire 获取租约。
//
// 事务内先删除所有 expire_at < now 的行，再插入 (name, now+ttl)。
// 插入失败（唯一约束冲突是预期原因）回滚并返回 [ErrFailedToAcquire]。
func (l *SQLLease) Acquire(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordAcquire(ctx, "sql", err) }()

	now := l.factory.now()

	tx, terr := l.factory.db.BeginTx(ctx, nil)
	if terr != nil {
		return fmt.Errorf("%w: sql begin: %w", ErrFailedToAcquire, terr)
	}
	defer func() { _ = tx.Rollback() }()

	if _, serr := tx.ExecContext(ctx, sqlSweepExpired, now); serr != nil {
		return fmt.Errorf("%w: sql sweep: %w", ErrFailedToAcquire, serr)
	}
	if _, ierr := tx.ExecContext(ctx, sqlInsertRow, l.resource.Name, now.Add(l.ttl)); ierr != nil {
		return fmt.Errorf("%w: sql insert: %w", ErrFailedToAcquire, ierr)
	}
	if cerr := tx.Commit(); cerr != nil {
		return fmt.Errorf("%w: sql commit: %w", ErrFailedToAcquire, cerr)
	}
	return nil
}

// Release 释放租约：删除同名行。
// 没有行被删除（从未持有或已被清扫）返回 [ErrFailedToRelease]。
func (l *SQLLease) Release(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordRelease(ctx, "sql", err) }()

	res, derr := l.factory.db.ExecContext(ctx, sqlDeleteRow, l.resource.Name)
	if derr != nil {
		return fmt.Errorf("%w: sql delete: %w", ErrFailedToRelease, derr)
	}
	n, aerr := res.RowsAffected()
	if aerr != nil {
		return fmt.Errorf("%w: sql rows affected: %w", ErrFailedToRelease, aerr)
	}
	if n == 0 {
		return ErrFailedToRelease
	}
	return nil
}

// Held 返回租约此刻是否持有：行存在且 expire_at 不早于当前时刻。
func (l *SQLLease) Held(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	var expireAt time.Time
	err := l.factory.db.QueryRowContext(ctx, sqlSelectExpiry, l.resource.Name).Scan(&expireAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !expireAt.Before(l.factory.now()), nil
}

// Resource 返回租约绑定的资源。
func (l *SQLLease) Resource() Resource { return l.resource }

// TTL 返回租约的生命周期。
func (l *SQLLease) TTL() time.Duration { return l.ttl }

// 确保 SQLFactory 实现了 Factory 接口
var _ Factory = (*SQLFactory)(nil)

// 确保 SQLLease 实现了 Lease 接口
var _ Lease = (*SQLLease)(nil)
