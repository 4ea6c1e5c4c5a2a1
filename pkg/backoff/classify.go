package backoff

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrRateLimited 下游网关限流
var ErrRateLimited = errors.New("rate limited")

// StatusError 携带下游返回的 HTTP 状态码
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Msg)
}

// Retryable 判断错误是否为瞬时故障。
// 连接拒绝、超时、DNS 解析失败、限流以及 429/503/504 视为可重试，其余一律不重试。
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case 429, 503, 504:
			return true
		}
		return false
	}

	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
