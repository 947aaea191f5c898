package contract

import "context"

// Chunker: 将二进制载荷编码为可打印文本，并切分为有序片段与宿主侧拼接语句。
// 约束：
// 1) 片段按顺序拼接并逆向解码后必须逐字节还原原始载荷；
// 2) 每条语句独立成行（"acc += 片段"），不依赖字符串续行；
// 3) 单行长度受宿主行长上限约束；
// 4) 纯计算，无 I/O、无内部并发、幂等。
type Chunker interface {
	Chunk(ctx context.Context, payload []byte) (Chunked, error)
}
