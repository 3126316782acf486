package lock

import (
	"sync"
	"time"
)

// LocalLock 进程内互斥锁实现，供memory后端与测试使用
// 与分布式实现同接口：已被持有时获取返回false而不阻塞
type LocalLock struct {
	mu    sync.Mutex
	locks map[string]time.Time // key是锁名，value是过期时间
}

func NewLocalLock() *LocalLock {
	return &LocalLock{
		locks: make(map[string]time.Time),
	}
}

// AcquireLock 获取锁，锁在timeout后自动视为过期
func (l *LocalLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.locks[lockName]; ok && time.Now().Before(expiry) {
		return false, nil
	}

	l.locks[lockName] = time.Now().Add(timeout)
	return true, nil
}

// RefreshLock 刷新锁的过期时间
func (l *LocalLock) RefreshLock(lockName string, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.locks[lockName]; !ok {
		return false, nil
	}

	l.locks[lockName] = time.Now().Add(timeout)
	return true, nil
}

// ReleaseLock 释放锁
func (l *LocalLock) ReleaseLock(lockName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, lockName)
	return nil
}

// ReleaseAllLocks 释放所有持有的锁
func (l *LocalLock) ReleaseAllLocks() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.locks = make(map[string]time.Time)
}

// Close 进程内实现无需释放资源
func (l *LocalLock) Close() error {
	return nil
}
