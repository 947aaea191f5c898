package contract

import "context"

// Reader: 构建输入源抽象（本地文件）。
// 约束：
// 1) 任一必需输入缺失即返回包装了 ErrInputMissing 的错误，不做部分返回；
// 2) FileID 稳定且去平台差异化；
// 3) 不做解码/业务解析，仅提供原始内容；
// 4) 不在内部起并发。
type Reader interface {
	Load(ctx context.Context, paths InputPaths) (Inputs, error)
}
