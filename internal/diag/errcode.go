package diag

import (
	"context"
	"errors"
	"os"
	"time"

	"nespdf/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，退出码映射见 cmd。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeInput     Code = "input"
	CodePayload   Code = "payload"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。
// 说明：仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 缺失输入先于 I/O：读取器会同时包装 ErrInputMissing 与 *os.PathError
	if errors.Is(err, contract.ErrInputMissing) {
		return CodeInput
	}
	if errors.Is(err, contract.ErrPayloadInvalid) {
		return CodePayload
	}
	if errors.Is(err, contract.ErrInvariantViolation) ||
		errors.Is(err, contract.ErrIDCollision) ||
		errors.Is(err, contract.ErrDanglingRef) ||
		errors.Is(err, contract.ErrXrefInvalid) ||
		errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于 corr_id 与状态输出）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
