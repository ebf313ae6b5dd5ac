// internal/services/lock_manager.go
package services

import (
	"sync"
	"sync/atomic"
	"time"
)

// LockManager 剧本级别的锁管理器
// 同一剧本上的状态变更串行执行（替代来源端单线程事件循环的互斥语义）；
// 不同剧本之间互不阻塞。长期未使用的锁会被定期回收。
type LockManager struct {
	screenplayLocks map[string]*lockInfo
	globalLock      sync.RWMutex
	cleanupTicker   *time.Ticker
}

// lockInfo 包装锁和最后使用时间
// lastUsed 存 UnixNano，持读锁的调用方也会写它，必须原子访问
type lockInfo struct {
	mutex    *sync.RWMutex
	lastUsed atomic.Int64
}

func (info *lockInfo) touch() {
	info.lastUsed.Store(time.Now().UnixNano())
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	lm := &LockManager{
		screenplayLocks: make(map[string]*lockInfo),
	}

	lm.startCleanup()
	return lm
}

// GetScreenplayLock 获取剧本锁（线程安全）
func (lm *LockManager) GetScreenplayLock(screenplayID string) *sync.RWMutex {
	lm.globalLock.RLock()
	if info, exists := lm.screenplayLocks[screenplayID]; exists {
		lm.globalLock.RUnlock()
		info.touch()
		return info.mutex
	}
	lm.globalLock.RUnlock()

	// 升级为写锁
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	// 双重检查（在写锁保护下是安全的）
	if info, exists := lm.screenplayLocks[screenplayID]; exists {
		info.touch()
		return info.mutex
	}

	info := &lockInfo{mutex: &sync.RWMutex{}}
	info.touch()
	lm.screenplayLocks[screenplayID] = info
	return info.mutex
}

// ExecuteWithLock 在剧本写锁保护下执行操作
func (lm *LockManager) ExecuteWithLock(screenplayID string, fn func() error) error {
	lock := lm.GetScreenplayLock(screenplayID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// ExecuteWithReadLock 在剧本读锁保护下执行操作
func (lm *LockManager) ExecuteWithReadLock(screenplayID string, fn func() error) error {
	lock := lm.GetScreenplayLock(screenplayID)
	lock.RLock()
	defer lock.RUnlock()
	return fn()
}

// 定期清理未使用的锁
func (lm *LockManager) startCleanup() {
	lm.cleanupTicker = time.NewTicker(5 * time.Minute)
	go func() {
		for range lm.cleanupTicker.C {
			lm.cleanupUnusedLocks()
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks() {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	const maxLocks = 200
	const lockTimeout = 30 * time.Minute

	// 只有在锁数量过多时才清理
	if len(lm.screenplayLocks) <= maxLocks {
		return
	}

	now := time.Now()
	for screenplayID, info := range lm.screenplayLocks {
		if now.Sub(time.Unix(0, info.lastUsed.Load())) > lockTimeout {
			delete(lm.screenplayLocks, screenplayID)
		}
	}
}
