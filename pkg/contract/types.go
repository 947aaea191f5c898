package contract

// FileID: 逻辑文件ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// ObjectID: 文档内对象编号（正整数；0 为交叉引用表保留的空闲哨兵）。
type ObjectID int

// InputPaths: 构建所需的本地输入位置。
type InputPaths struct {
	// Engine: 外部计算引擎脚本（文本）。
	Engine string
	// Payload: 引擎加载的内容载荷（二进制）。
	Payload string
}

// Inputs: 已读入内存的构建输入。
// 约束：
// - Engine 原样保留（补丁由 script 包负责）；
// - Payload 原样字节，不做任何解码。
type Inputs struct {
	EngineID  FileID
	Engine    string
	PayloadID FileID
	Payload   []byte
}

// Chunked: 载荷经文本编码与分片后的结果。
// 约束：
// - strings.Join(Fragments, "") == Encoded；
// - len(Statements) == len(Fragments)，顺序一一对应；
// - 每条 Statement 为单行，长度不超过宿主行长上限；
// - Statements 追加到名为 Accumulator 的宿主变量。
type Chunked struct {
	Accumulator string
	Encoded     string
	Fragments   []string
	Statements  []string
}
