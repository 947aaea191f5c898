package document

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"nespdf/pkg/contract"
)

// Body 为装配后的对象字节流（不含文件头）。
type Body struct {
	Bytes []byte
	// Order: 对象编号的输出顺序。
	Order []contract.ObjectID
}

// Assemble 按给定顺序序列化对象。
// 校验：编号唯一且为正（ErrIDCollision / ErrInvariantViolation）；所有引用目标都在集合内（ErrDanglingRef）。
func Assemble(ctx context.Context, objs []Object) (Body, error) {
	select {
	case <-ctx.Done():
		return Body{}, ctx.Err()
	default:
	}
	present := make(map[contract.ObjectID]struct{}, len(objs))
	for _, o := range objs {
		if o.ID <= 0 {
			return Body{}, fmt.Errorf("%w: object id %d", contract.ErrInvariantViolation, o.ID)
		}
		if _, dup := present[o.ID]; dup {
			return Body{}, fmt.Errorf("%w: object %d emitted twice", contract.ErrIDCollision, o.ID)
		}
		present[o.ID] = struct{}{}
	}
	for _, o := range objs {
		for _, r := range o.Refs() {
			if _, ok := present[r]; !ok {
				return Body{}, fmt.Errorf("%w: %s %d references %d", contract.ErrDanglingRef, o.Kind, o.ID, r)
			}
		}
	}

	var b bytes.Buffer
	order := make([]contract.ObjectID, 0, len(objs))
	for _, o := range objs {
		o.encodeTo(&b)
		order = append(order, o.ID)
	}
	return Body{Bytes: b.Bytes(), Order: order}, nil
}

// Sorted 返回升序编号（用于比对）。
func (b Body) Sorted() []contract.ObjectID {
	ids := append([]contract.ObjectID(nil), b.Order...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
