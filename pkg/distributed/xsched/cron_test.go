package xsched

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awol-linux/ha-task-locker/pkg/distributed/xlease"
)

func TestScheduleGuard(t *testing.T) {
	factory := xlease.NewMemoryFactory()
	job := &countingJob{}
	g, err := NewGuard("cron-task", job, time.Minute, factory, GoRunner{},
		WithGuardLogger(quietLogger{}))
	require.NoError(t, err)

	c := cron.New()
	id, err := ScheduleGuard(c, "@every 1m", g)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	t.Run("invalid spec", func(t *testing.T) {
		_, err := ScheduleGuard(c, "not-a-spec", g)
		assert.Error(t, err)
	})
}

func TestGuardJob_Run(t *testing.T) {
	factory := xlease.NewMemoryFactory()
	job := &countingJob{}
	g, err := NewGuard("tick", job, time.Minute, factory, GoRunner{},
		WithGuardLogger(quietLogger{}))
	require.NoError(t, err)

	j := guardJob{g: g}

	// 第一次触发执行任务
	j.Run()
	assert.Equal(t, int64(1), job.count.Load())

	// 被锁定的触发静默跳过，不 panic 不中断
	j.Run()
	assert.Equal(t, int64(1), job.count.Load())
	assert.Equal(t, int64(1), g.Stats().Locked())
}

func TestGuardJob_RunnerFailureLogged(t *testing.T) {
	factory := xlease.NewMemoryFactory()
	job := &countingJob{err: assert.AnError}
	g, err := NewGuard("failing", job, time.Minute, factory, GoRunner{},
		WithGuardLogger(quietLogger{}))
	require.NoError(t, err)

	// 运行时错误被记录而不是抛出
	assert.NotPanics(t, func() { guardJob{g: g}.Run() })
	assert.Equal(t, int64(1), g.Stats().Failures())
}

func TestGoRunner_SubmitInline(t *testing.T) {
	job := &countingJob{}
	require.NoError(t, GoRunner{}.Submit(context.Background(), "inline", job))
	assert.Equal(t, int64(1), job.count.Load())
}

func TestJobFunc_Adapts(t *testing.T) {
	ran := false
	job := JobFunc(func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, job.Run(context.Background()))
	assert.True(t, ran)
}
