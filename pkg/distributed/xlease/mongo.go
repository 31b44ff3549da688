package xlease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// lockDocument 租约文档：每个资源的集合里至多一份。
// _id 的唯一约束提供互斥，date 上的 TTL 索引为崩溃的持有者兜底。
type lockDocument struct {
	ID   string    `bson:"_id"`
	Date time.Time `bson:"date"`
}

// lockCollection 抽象租约协议用到的集合操作。
// 线上实现是 mongoCollAdapter（薄封装 *mongo.Collection），
// 单元测试注入内存实现。
type lockCollection interface {
	ensureCollection(ctx context.Context) error
	ensureTTLIndex(ctx context.Context, expireAfter time.Duration) error
	insertOne(ctx context.Context, doc lockDocument) error
	findOne(ctx context.Context, name string) (lockDocument, error)
	findOneAndDelete(ctx context.Context, name string) error
	deleteOne(ctx context.Context, name string, date time.Time) error
}

// =============================================================================
// Mongo 工厂
// =============================================================================

// MongoFactory 基于 MongoDB 的租约工厂。
//
// 每个资源使用一个同名集合，内有一份 {_id: <name>, date: <获取时刻>} 文档。
// _id 唯一约束保证同一时刻至多一个获取者插入成功；date 字段上的 TTL 索引
// （expireAfterSeconds = ttl）在持有者崩溃时由服务端回收文档。
//
// 用法：
//
//	client, _ := mongo.Connect(options.Client().ApplyURI(uri))
//	factory, err := xlease.NewMongoFactory(client.Database("locks"))
type MongoFactory struct {
	db      *mongo.Database
	collFn  func(name string) lockCollection
	now     func() time.Time
	metrics *leaseMetrics
}

// NewMongoFactory 创建 MongoDB 租约工厂。
//
// db 必须来自已连接的客户端；工厂不管理客户端生命周期。
// db 为 nil 时返回 [ErrNilClient]。
func NewMongoFactory(db *mongo.Database, opts ...FactoryOption) (*MongoFactory, error) {
	if db == nil {
		return nil, ErrNilClient
	}
	f := newMongoFactory(func(name string) lockCollection {
		return &mongoCollAdapter{coll: db.Collection(name)}
	}, opts...)
	f.db = db
	return f, nil
}

// newMongoFactory 内部构造，测试通过此入口注入内存集合。
func newMongoFactory(collFn func(name string) lockCollection, opts ...FactoryOption) *MongoFactory {
	cfg := applyFactoryOptions(opts)
	return &MongoFactory{
		collFn:  collFn,
		now:     cfg.Now,
		metrics: newLeaseMetrics(cfg.Meter),
	}
}

// NewLease 铸造一个 Mongo 租约。
func (f *MongoFactory) NewLease(resource Resource, ttl time.Duration) (Lease, error) {
	if err := validateLease(resource, ttl); err != nil {
		return nil, err
	}
	return &MongoLease{
		factory:  f,
		resource: resource,
		ttl:      ttl,
		coll:     f.collFn(resource.Name),
	}, nil
}

// Health 健康检查，对主节点执行 Ping。
func (f *MongoFactory) Health(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if f.db == nil {
		return nil
	}
	return f.db.Client().Ping(ctx, readpref.Primary())
}

// Database 返回底层数据库句柄。
func (f *MongoFactory) Database() *mongo.Database {
	return f.db
}

// =============================================================================
// Mongo 租约
// =============================================================================

// MongoLease 单个集合上的租约。
type MongoLease struct {
	factory  *MongoFactory
	resource Resource
	ttl      time.Duration
	coll     lockCollection
}

// Acquire 获取租约。
//
// 确保集合存在后尝试插入文档，插入成功后再刷新 TTL 索引。_id 冲突时重读现有文档：
// 若 date+ttl 已过（持有者崩溃且 TTL 索引尚未清理），按观察到的 date
// 条件删除后重插一次——重插本身仍受 _id 唯一约束保护，竞争输家得到
// 第二次冲突并失败，丢失更新在此可接受；否则返回 [ErrFailedToAcquire]。
func (l *MongoLease) Acquire(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordAcquire(ctx, "mongo", err) }()

	if cerr := l.coll.ensureCollection(ctx); cerr != nil {
		return fmt.Errorf("%w: mongo ensure collection: %w", ErrFailedToAcquire, cerr)
	}

	now := l.factory.now().UTC()
	doc := lockDocument{ID: l.resource.Name, Date: now}

	ierr := l.coll.insertOne(ctx, doc)
	if ierr == nil {
		return l.afterInsert(ctx)
	}
	if !mongo.IsDuplicateKeyError(ierr) {
		return fmt.Errorf("%w: mongo insert: %w", ErrFailedToAcquire, ierr)
	}

	current, gerr := l.coll.findOne(ctx, l.resource.Name)
	if gerr != nil {
		// 文档在冲突和重读之间消失（TTL 清理或他人释放），本轮放弃。
		return fmt.Errorf("%w: mongo reread: %w", ErrFailedToAcquire, gerr)
	}
	if !current.Date.Add(l.ttl).Before(now) {
		return ErrFailedToAcquire
	}

	if derr := l.coll.deleteOne(ctx, l.resource.Name, current.Date); derr != nil {
		return fmt.Errorf("%w: mongo delete stale: %w", ErrFailedToAcquire, derr)
	}
	if ierr := l.coll.insertOne(ctx, doc); ierr != nil {
		if mongo.IsDuplicateKeyError(ierr) {
			return ErrFailedToAcquire
		}
		return fmt.Errorf("%w: mongo reinsert: %w", ErrFailedToAcquire, ierr)
	}
	return l.afterInsert(ctx)
}

// afterInsert 插入成功后刷新 TTL 索引（expireAfterSeconds 跟随本租约 ttl）。
func (l *MongoLease) afterInsert(ctx context.Context) error {
	if err := l.coll.ensureTTLIndex(ctx, l.ttl); err != nil {
		return fmt.Errorf("%w: mongo ttl index: %w", ErrFailedToAcquire, err)
	}
	return nil
}

// Release 释放租约：findOneAndDelete({_id: name})。
// 文档不存在返回 [ErrFailedToRelease]。
func (l *MongoLease) Release(ctx context.Context) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	defer func() { l.factory.metrics.recordRelease(ctx, "mongo", err) }()

	if derr := l.coll.findOneAndDelete(ctx, l.resource.Name); derr != nil {
		if errors.Is(derr, mongo.ErrNoDocuments) {
			return ErrFailedToRelease
		}
		return fmt.Errorf("%w: mongo delete: %w", ErrFailedToRelease, derr)
	}
	return nil
}

// Held 返回租约此刻是否持有：文档存在且 date+ttl 不早于当前时刻。
func (l *MongoLease) Held(ctx context.Context) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	doc, err := l.coll.findOne(ctx, l.resource.Name)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !doc.Date.Add(l.ttl).Before(l.factory.now().UTC()), nil
}

// Resource 返回租约绑定的资源。
func (l *MongoLease) Resource() Resource { return l.resource }

// TTL 返回租约的生命周期。
func (l *MongoLease) TTL() time.Duration { return l.ttl }

// =============================================================================
// 集合适配器 - 将 *mongo.Collection 适配为 lockCollection
// =============================================================================

// mongoCollAdapter 将 *mongo.Collection 适配为 lockCollection 接口。
type mongoCollAdapter struct {
	coll *mongo.Collection
}

func (a *mongoCollAdapter) ensureCollection(ctx context.Context) error {
	db := a.coll.Database()
	names, err := db.ListCollectionNames(ctx, bson.M{"name": a.coll.Name()})
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return nil
	}
	err = db.CreateCollection(ctx, a.coll.Name())
	// 与并发获取者同时建集合时的冲突不是错误
	if err != nil && !isNamespaceExists(err) {
		return err
	}
	return nil
}

func (a *mongoCollAdapter) ensureTTLIndex(ctx context.Context, expireAfter time.Duration) error {
	// expireAfterSeconds 跟随租约 ttl，先清掉旧索引再重建，
	// 避免不同 ttl 的历史索引触发 IndexOptionsConflict。
	if err := a.coll.Indexes().DropAll(ctx); err != nil && !isNamespaceNotFound(err) {
		return err
	}
	seconds := int32(expireAfter / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	_, err := a.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(seconds),
	})
	return err
}

func (a *mongoCollAdapter) insertOne(ctx context.Context, doc lockDocument) error {
	_, err := a.coll.InsertOne(ctx, doc)
	return err
}

func (a *mongoCollAdapter) findOne(ctx context.Context, name string) (lockDocument, error) {
	var doc lockDocument
	err := a.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	return doc, err
}

func (a *mongoCollAdapter) findOneAndDelete(ctx context.Context, name string) error {
	var doc lockDocument
	return a.coll.FindOneAndDelete(ctx, bson.M{"_id": name}).Decode(&doc)
}

func (a *mongoCollAdapter) deleteOne(ctx context.Context, name string, date time.Time) error {
	_, err := a.coll.DeleteOne(ctx, bson.M{"_id": name, "date": date})
	return err
}

// isNamespaceExists 识别"集合已存在"的服务端错误（代码 48）。
func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 48
}

// isNamespaceNotFound 识别"命名空间不存在"的服务端错误（代码 26）。
func isNamespaceNotFound(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 26
}

// 确保 MongoFactory 实现了 Factory 接口
var _ Factory = (*MongoFactory)(nil)

// 确保 MongoLease 实现了 Lease 接口
var _ Lease = (*MongoLease)(nil)

// 确保 mongoCollAdapter 实现了 lockCollection 接口
var _ lockCollection = (*mongoCollAdapter)(nil)
