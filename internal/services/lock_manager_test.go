// internal/services/lock_manager_test.go
package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockManager_SameScreenplaySameLock(t *testing.T) {
	lm := NewLockManager()

	first := lm.GetScreenplayLock("sp1")
	second := lm.GetScreenplayLock("sp1")

	assert.Same(t, first, second)
}

func TestLockManager_DifferentScreenplaysDifferentLocks(t *testing.T) {
	lm := NewLockManager()

	a := lm.GetScreenplayLock("sp1")
	b := lm.GetScreenplayLock("sp2")

	assert.NotSame(t, a, b)
}

func TestLockManager_ExecuteWithLockSerializes(t *testing.T) {
	lm := NewLockManager()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lm.ExecuteWithLock("sp", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestLockManager_ConcurrentAccessWithCleanup(t *testing.T) {
	lm := NewLockManager()

	// 填入超过清理阈值的锁，使清理真正遍历 lastUsed
	for i := 0; i < 256; i++ {
		lm.GetScreenplayLock(fmt.Sprintf("seed-%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("hot-%d", n)
			for j := 0; j < 200; j++ {
				lock := lm.GetScreenplayLock(id)
				lock.Lock()
				lock.Unlock()
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				lm.cleanupUnusedLocks()
			}
		}()
	}
	wg.Wait()

	// 刚使用过的锁不会被回收
	require.NotNil(t, lm.GetScreenplayLock("hot-0"))
}
