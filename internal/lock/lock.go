package lock

import (
	"time"
)

// Lock 互斥锁接口，兑付流程按收据唯一标识加锁
// 分布式部署使用etcd或Redlock实现，单实例与测试使用进程内实现
type Lock interface {
	// AcquireLock 获取锁
	// 返回值：bool表示是否成功获取锁，error表示获取过程中的错误
	AcquireLock(lockName string, timeout time.Duration) (bool, error)

	// RefreshLock 刷新锁的过期时间
	// 返回值：bool表示是否成功刷新锁，error表示刷新过程中的错误
	RefreshLock(lockName string, timeout time.Duration) (bool, error)

	// ReleaseLock 释放锁
	ReleaseLock(lockName string) error

	// ReleaseAllLocks 释放所有持有的锁
	ReleaseAllLocks()

	// Close 关闭锁客户端
	Close() error
}

// ReceiptLockName 生成收据维度的锁名
func ReceiptLockName(uniqueID string) string {
	return "lottery:receipt:lock:" + uniqueID
}
