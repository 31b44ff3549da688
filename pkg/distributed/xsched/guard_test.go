package xsched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awol-linux/ha-task-locker/pkg/distributed/xlease"
)

// fakeClock 可推进的测试时钟。
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// quietLogger 静默日志。
type quietLogger struct{}

func (quietLogger) Debug(context.Context, string, ...any) {}
func (quietLogger) Info(context.Context, string, ...any)  {}
func (quietLogger) Warn(context.Context, string, ...any)  {}
func (quietLogger) Error(context.Context, string, ...any) {}

// countingJob 记录执行次数的任务。
type countingJob struct {
	count atomic.Int64
	err   error
}

func (j *countingJob) Run(context.Context) error {
	j.count.Add(1)
	return j.err
}

// ============================================================================
// NewGuard Tests
// ============================================================================

func TestNewGuard_Validation(t *testing.T) {
	factory := xlease.NewMemoryFactory()
	job := &countingJob{}

	t.Run("nil job", func(t *testing.T) {
		_, err := NewGuard("task", nil, time.Second, factory, GoRunner{})
		assert.ErrorIs(t, err, ErrNilJob)
	})

	t.Run("nil factory", func(t *testing.T) {
		_, err := NewGuard("task", job, time.Second, nil, GoRunner{})
		assert.ErrorIs(t, err, ErrNilFactory)
	})

	t.Run("nil runner", func(t *testing.T) {
		_, err := NewGuard("task", job, time.Second, factory, nil)
		assert.ErrorIs(t, err, ErrNilRunner)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := NewGuard("", job, time.Second, factory, GoRunner{})
		assert.ErrorIs(t, err, xlease.ErrEmptyResource)
	})

	t.Run("invalid ttl", func(t *testing.T) {
		_, err := NewGuard("task", job, 0, factory, GoRunner{})
		assert.ErrorIs(t, err, xlease.ErrInvalidTTL)
	})

	t.Run("valid", func(t *testing.T) {
		g, err := NewGuard("task", job, time.Second, factory, GoRunner{})
		require.NoError(t, err)
		assert.Equal(t, "task", g.Name())
		assert.Equal(t, time.Second, g.TTL())
	})
}

// ============================================================================
// Run Tests
// ============================================================================

func TestGuard_RunOncePerWindow(t *testing.T) {
	clock := newFakeClock()
	factory := xlease.NewMemoryFactory(xlease.WithNow(clock.Now))
	job := &countingJob{}

	g, err := NewGuard("report", job, time.Second, factory, GoRunner{},
		WithGuardLogger(quietLogger{}))
	require.NoError(t, err)

	ctx := context.Background()

	// 第一次触发执行任务
	require.NoError(t, g.Run(ctx))
	assert.Equal(t, int64(1), job.count.Load())

	// 同一 TTL 窗口内的第二次触发被锁定
	err = g.Run(ctx)
	var locked *TaskLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "report", locked.Key)
	assert.Equal(t, time.Second, locked.TTL)
	assert.ErrorIs(t, err, xlease.ErrFailedToAcquire)
	assert.Equal(t, int64(1), job.count.Load())

	// TTL 窗口过后再次执行
	clock.Advance(time.Second + time.Millisecond)
	require.NoError(t, g.Run(ctx))
	assert.Equal(t, int64(2), job.count.Load())

	assert.Equal(t, int64(2), g.Stats().Runs())
	assert.Equal(t, int64(1), g.Stats().Locked())
}

func TestGuard_NeverReleasesOnCompletion(t *testing.T) {
	clock := newFakeClock()
	factory := xlease.NewMemoryFactory(xlease.WithNow(clock.Now))
	job := &countingJob{}

	g, err := NewGuard("report", job, time.Minute, factory, GoRunner{},
		WithGuardLogger(quietLogger{}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.Run(ctx))

	// 任务已执行完，租约必须仍然持有到 TTL：共同调度的副本要看到"已持有"
	held, herr := g.Lease().Held(ctx)
	require.NoError(t, herr)
	assert.True(t, held)
}

func TestGuard_CrossProcessContention(t *testing.T) {
	// 两个守卫共享同一工厂，模拟两个 worker 进程
	clock := newFakeClock()
	factory := xlease.NewMemoryFactory(xlease.WithNow(clock.Now))
	jobA := &countingJob{}
	jobB := &countingJob{}

	ga, _ := NewGuard("report", jobA, time.Second, factory, GoRunner{}, WithGuardLogger(quietLogger{}))
	gb, _ := NewGuard("report", jobB, time.Second, factory, GoRunner{}, WithGuardLogger(quietLogger{}))

	ctx := context.Background()
	require.NoError(t, ga.Run(ctx))
	assert.True(t, IsTaskLocked(gb.Run(ctx)))
	assert.Equal(t, int64(1), jobA.count.Load())
	assert.Equal(t, int64(0), jobB.count.Load())
}

func TestGuard_RunnerErrorPropagates(t *testing.T) {
	factory := xlease.NewMemoryFactory()
	boom := errors.New("job failed")
	job := &countingJob{err: boom}

	g, err := NewGuard("report", job, time.Minute, factory, GoRunner{},
		WithGuardLogger(quietLogger{}))
	require.NoError(t, err)

	rerr := g.Run(context.Background())
	assert.ErrorIs(t, rerr, boom)
	assert.False(t, IsTaskLocked(rerr))
	assert.Equal(t, int64(1), g.Stats().Failures())
}

// ============================================================================
// 共享运行时
// ============================================================================

// recordingRunner 记录提交的任务名。
type recordingRunner struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingRunner) Submit(ctx context.Context, name string, job Job) error {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return job.Run(ctx)
}

func TestSharedGuard_UsesDefaultRunner(t *testing.T) {
	rec := &recordingRunner{}
	SetDefaultRunner(rec)
	t.Cleanup(func() { SetDefaultRunner(nil) })

	factory := xlease.NewMemoryFactory()
	job := &countingJob{}

	g, err := NewSharedGuard("shared-task", job, time.Minute, factory,
		WithGuardLogger(quietLogger{}))
	require.NoError(t, err)

	require.NoError(t, g.Run(context.Background()))
	assert.Equal(t, []string{"shared-task"}, rec.names)
	assert.Equal(t, int64(1), job.count.Load())
}

func TestSetDefaultRunner_NilRestoresInline(t *testing.T) {
	SetDefaultRunner(nil)
	assert.Equal(t, GoRunner{}, DefaultRunner())
}

func TestSharedGuard_SwapAfterCreation(t *testing.T) {
	// 共享守卫每次 Run 解引用当前默认运行时
	factory := xlease.NewMemoryFactory()
	job := &countingJob{}
	g, err := NewSharedGuard("late-swap", job, time.Minute, factory,
		WithGuardLogger(quietLogger{}))
	require.NoError(t, err)

	rec := &recordingRunner{}
	SetDefaultRunner(rec)
	t.Cleanup(func() { SetDefaultRunner(nil) })

	require.NoError(t, g.Run(context.Background()))
	assert.Equal(t, []string{"late-swap"}, rec.names)
}
