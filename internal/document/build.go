package document

import (
	"context"
	"fmt"

	"nespdf/internal/layout"
	"nespdf/pkg/contract"
)

// Result 为一次构建的产物与统计。
type Result struct {
	File    []byte
	Objects int
	Size    int
	Offsets Offsets
}

// Build 依次执行：生成对象 → 装配 → 扫描偏移 → 链接交叉引用表与尾部。
// 编号来自规划，不在装配期发现；偏移只在对象流完全确定后计算。
func Build(ctx context.Context, p *layout.Plan, sc Scripts, font Font) (Result, error) {
	objs, err := Shape(p, sc, font)
	if err != nil {
		return Result{}, err
	}
	body, err := Assemble(ctx, objs)
	if err != nil {
		return Result{}, err
	}
	offs, err := Index(body.Bytes, len(Header))
	if err != nil {
		return Result{}, err
	}
	if len(offs) != len(objs) {
		return Result{}, fmt.Errorf("%w: indexed %d objects, assembled %d", contract.ErrXrefInvalid, len(offs), len(objs))
	}
	file, err := Link(body.Bytes, offs, p.Spec().CatalogID)
	if err != nil {
		return Result{}, err
	}
	return Result{File: file, Objects: len(objs), Size: int(offs.Max()) + 1, Offsets: offs}, nil
}
