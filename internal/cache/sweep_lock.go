package cache

import (
	"context"
	"time"
)

const sweepLockKey = "reconciliation:sweep_lock"

// AcquireSweepLock 获取对账扫描锁，防止多实例同时执行。
// Redis 未启用时直接放行（单实例部署场景）。
func AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if !Enabled() {
		return true, nil
	}
	return redisClient.SetNX(ctx, buildKey(sweepLockKey), time.Now().Unix(), ttl).Result()
}

// ReleaseSweepLock 释放对账扫描锁
func ReleaseSweepLock(ctx context.Context) error {
	if !Enabled() {
		return nil
	}
	return redisClient.Del(ctx, buildKey(sweepLockKey)).Err()
}
