package xsched

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/awol-linux/ha-task-locker/pkg/distributed/xlease"
)

func TestTaskLockedError(t *testing.T) {
	err := &TaskLockedError{
		Key:   "report",
		TTL:   30 * time.Second,
		Cause: xlease.ErrFailedToAcquire,
	}

	t.Run("message carries key and horizon", func(t *testing.T) {
		assert.Contains(t, err.Error(), `"report"`)
		assert.Contains(t, err.Error(), "30s")
	})

	t.Run("matchable via errors.As", func(t *testing.T) {
		wrapped := fmt.Errorf("tick: %w", err)
		var locked *TaskLockedError
		assert.True(t, errors.As(wrapped, &locked))
		assert.Equal(t, 30*time.Second, locked.TTL)
	})

	t.Run("unwraps to acquire failure", func(t *testing.T) {
		assert.ErrorIs(t, err, xlease.ErrFailedToAcquire)
	})

	t.Run("IsTaskLocked helper", func(t *testing.T) {
		assert.True(t, IsTaskLocked(err))
		assert.False(t, IsTaskLocked(xlease.ErrFailedToAcquire))
		assert.False(t, IsTaskLocked(nil))
	})
}
