//go:build integration

package xlease

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// =============================================================================
// 测试环境设置
// =============================================================================

func setupMongoBackend(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("LOCKER_MONGO_URI")
	if uri == "" {
		uri = startMongoContainer(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("xlease_integration")
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
	})
	return db
}

func startMongoContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)
	return "mongodb://" + host + ":" + port.Port()
}

// =============================================================================
// 真实后端上的协议测试
// =============================================================================

func TestIntegrationMongoLease_RefusalThenReclaim(t *testing.T) {
	db := setupMongoBackend(t)
	factory, err := NewMongoFactory(db)
	require.NoError(t, err)

	res, _ := NewResource("test")
	ctx := context.Background()

	a, err := factory.NewLease(res, time.Second)
	require.NoError(t, err)
	b, err := factory.NewLease(res, time.Second)
	require.NoError(t, err)

	require.NoError(t, a.Acquire(ctx))
	assert.ErrorIs(t, b.Acquire(ctx), ErrFailedToAcquire)

	// TTL 过后文档转入陈旧态，接管路径生效（无需等服务端索引清扫）
	time.Sleep(1100 * time.Millisecond)
	assert.NoError(t, b.Acquire(ctx))
}

func TestIntegrationMongoLease_ReleaseAndStatus(t *testing.T) {
	db := setupMongoBackend(t)
	factory, err := NewMongoFactory(db)
	require.NoError(t, err)

	res, _ := NewResource("status")
	ctx := context.Background()

	l, err := factory.NewLease(res, 5*time.Second)
	require.NoError(t, err)

	held, err := l.Held(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, l.Acquire(ctx))
	held, err = l.Held(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, l.Release(ctx))
	held, err = l.Held(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	assert.ErrorIs(t, l.Release(ctx), ErrFailedToRelease)
}

func TestIntegrationMongoFactory_Health(t *testing.T) {
	db := setupMongoBackend(t)
	factory, err := NewMongoFactory(db)
	require.NoError(t, err)
	assert.NoError(t, factory.Health(context.Background()))
}
