package repository

import (
	"codequest_backend/internal/util"
	"codequest_backend/pkg/retry"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"gorm.io/gorm"
)

// StorageGuard 存储访问的统一护栏：每次调用限时，超时/连接类故障
// 包装为 ErrStorageUnavailable 并短退避重试一次；业务性错误原样返回且不重试。
type StorageGuard struct {
	timeout time.Duration
	backoff time.Duration
}

func NewStorageGuard(timeout, backoff time.Duration) StorageGuard {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return StorageGuard{timeout: timeout, backoff: backoff}
}

func (g StorageGuard) run(db *gorm.DB, op func(tx *gorm.DB) error) error {
	cfg := retry.Config{Attempts: 2, Backoff: g.backoff}
	return retry.Do(cfg, isStorageUnavailable, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()
		if err := op(db.WithContext(ctx)); err != nil {
			return wrapStorageErr(err)
		}
		return nil
	})
}

func isStorageUnavailable(err error) bool {
	return errors.Is(err, util.ErrStorageUnavailable)
}

// IsNotFound 判定是否为记录缺失，交给上层翻译成具体的 NotFound 语义
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", util.ErrStorageUnavailable, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", util.ErrStorageUnavailable, err)
	}
	return err
}

// UserPoints 按用户聚合出的积分行
type UserPoints struct {
	UserID uint
	Points int
}
