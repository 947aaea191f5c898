package contract

import "errors"

// 最小错误分类（用于上层策略判定与退出码映射）。
var (
	// ErrInputMissing: 必需的本地输入不存在或不可读。
	ErrInputMissing = errors.New("input missing")
	// ErrPayloadInvalid: 载荷未通过 4 字节签名校验。
	ErrPayloadInvalid = errors.New("payload invalid")
	// ErrIDCollision: 对象编号区间重叠或重复出现。
	ErrIDCollision = errors.New("object id collision")
	// ErrDanglingRef: 对象体引用了不存在的对象。
	ErrDanglingRef = errors.New("dangling reference")
	// ErrXrefInvalid: 交叉引用表/尾部与对象偏移不一致或无法解析。
	ErrXrefInvalid = errors.New("xref invalid")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
