package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"nespdf/internal/bridge"
	"nespdf/internal/diag"
	"nespdf/internal/document"
	"nespdf/internal/layout"
	"nespdf/internal/script"
	"nespdf/pkg/contract"
)

// - 单线程、同步：每个阶段的输出是下一阶段的唯一输入，运行之间不共享可变状态。
// - 首错即停：任一阶段失败立即返回，Writer 之前不产生任何文件。
// - 偏移只在对象流完全确定后计算；写出前重新解析产物做自检。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader  contract.Reader
	Chunker contract.Chunker
	Writer  contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Inputs contract.InputPaths
	// Output: 交给 Writer 的产物标识（相对 Writer 的输出根）。
	Output contract.ArtifactID

	Layout layout.Spec
	Font   document.Font
	// Bridge: 桥接常量；行列与按钮表由规划覆盖。
	Bridge bridge.Config
	// EngineNS: 引擎脚本导出的全局名；空为默认。
	EngineNS string
	// StrictPayload: 构建期即校验载荷签名。
	StrictPayload bool
}

// Result 为一次构建的摘要。
type Result struct {
	Output     contract.ArtifactID
	Bytes      int
	Objects    int
	XrefSize   int
	Fragments  int
	Patched    bool
	DocumentID string
}

type runner struct {
	log  *diag.Logger
	file string
	term *diag.Terminal
}

// stage 包裹一次阶段调用：日志 start/finish/error、计数、耗时与终端提示。
func (r *runner) stage(ctx context.Context, comp, name string, fn func() (int64, string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.term.StageStart(name)
	var timer *diag.Timer
	if r.log != nil {
		timer = r.log.StartWith(comp, name, r.file)
	}
	t0 := time.Now()
	count, detail, err := fn()
	diag.ObserveDuration(comp, name, time.Since(t0).Milliseconds())
	if err != nil {
		code := diag.Classify(err)
		if r.log != nil {
			r.log.ErrorWith(comp, string(code), name+" failed: "+err.Error(), &t0, r.file)
		}
		diag.IncOp(comp, "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError(comp, string(code))
		}
		r.term.StageFinish(false, string(code))
		return fmt.Errorf("%s %s: %w", comp, name, err)
	}
	timer.Finish(name, count)
	diag.IncOp(comp, "finish", "success")
	r.term.StageFinish(true, detail)
	return nil
}

// Run 执行完整流水线：Reader → 校验 → 规划 → Chunker → 脚本渲染 → 装配 → 偏移/交叉引用 → 自检 → Writer。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Result, error) {
	if err := sanity(comp, set); err != nil {
		return Result{}, fmt.Errorf("sanity: %w", err)
	}
	r := &runner{log: logger, file: string(set.Output), term: diag.GetTerminal()}
	r.term.RunStart(string(set.Output))
	start := time.Now()
	res, err := run(ctx, r, comp, set)
	r.term.RunFinish(err == nil, time.Since(start))
	if err == nil && logger != nil {
		logger.InfoFinish("pipeline", "build", start, int64(res.Bytes))
	}
	return res, err
}

func run(ctx context.Context, r *runner, comp Components, set Settings) (Result, error) {
	res := Result{Output: set.Output}

	var in contract.Inputs
	err := r.stage(ctx, "reader", "read", func() (int64, string, error) {
		var err error
		in, err = comp.Reader.Load(ctx, set.Inputs)
		return int64(len(in.Payload)), "payload=" + strconv.Itoa(len(in.Payload)), err
	})
	if err != nil {
		return res, err
	}

	err = r.stage(ctx, "pipeline", "check", func() (int64, string, error) {
		if !set.StrictPayload {
			return 0, "skipped", nil
		}
		return 0, "magic ok", CheckPayload(in.Payload, set.Bridge)
	})
	if err != nil {
		return res, err
	}

	var plan *layout.Plan
	var bcfg bridge.Config
	err = r.stage(ctx, "layout", "plan", func() (int64, string, error) {
		var err error
		if plan, err = layout.New(set.Layout); err != nil {
			return 0, "", err
		}
		bcfg = bridge.FromPlan(set.Bridge, plan)
		if err := bcfg.Validate(); err != nil {
			return 0, "", err
		}
		return int64(len(plan.IDs())), "ids=" + strconv.Itoa(len(plan.IDs())), nil
	})
	if err != nil {
		return res, err
	}

	var chunked contract.Chunked
	err = r.stage(ctx, "chunker", "chunk", func() (int64, string, error) {
		var err error
		chunked, err = comp.Chunker.Chunk(ctx, in.Payload)
		return int64(len(chunked.Fragments)), "fragments=" + strconv.Itoa(len(chunked.Fragments)), err
	})
	if err != nil {
		return res, err
	}
	res.Fragments = len(chunked.Fragments)

	var prog script.Program
	err = r.stage(ctx, "script", "render", func() (int64, string, error) {
		var err error
		if prog, err = script.Render(bcfg, in.Engine, chunked, set.EngineNS); err != nil {
			return 0, "", err
		}
		if !prog.Patched && r.log != nil {
			r.log.Warn("script", "engine signature literal not found", map[string]string{"engine": string(in.EngineID)})
		}
		return int64(len(prog.Main)), "patched=" + strconv.FormatBool(prog.Patched), nil
	})
	if err != nil {
		return res, err
	}
	res.Patched = prog.Patched

	var body document.Body
	err = r.stage(ctx, "document", "assemble", func() (int64, string, error) {
		objs, err := document.Shape(plan, document.Scripts{Main: prog.Main, Buttons: prog.Buttons}, set.Font)
		if err != nil {
			return 0, "", err
		}
		if body, err = document.Assemble(ctx, objs); err != nil {
			return 0, "", err
		}
		return int64(len(objs)), "objects=" + strconv.Itoa(len(objs)), nil
	})
	if err != nil {
		return res, err
	}
	res.Objects = len(body.Order)

	var file []byte
	err = r.stage(ctx, "document", "index", func() (int64, string, error) {
		offs, err := document.Index(body.Bytes, len(document.Header))
		if err != nil {
			return 0, "", err
		}
		if len(offs) != len(body.Order) {
			return 0, "", fmt.Errorf("%w: indexed %d objects, assembled %d", contract.ErrXrefInvalid, len(offs), len(body.Order))
		}
		if file, err = document.Link(body.Bytes, offs, set.Layout.CatalogID); err != nil {
			return 0, "", err
		}
		res.XrefSize = int(offs.Max()) + 1
		return int64(res.XrefSize), "xref=" + strconv.Itoa(res.XrefSize), nil
	})
	if err != nil {
		return res, err
	}

	err = r.stage(ctx, "document", "verify", func() (int64, string, error) {
		p, err := document.Verify(file)
		if err != nil {
			return 0, "", err
		}
		res.DocumentID = p.ID
		return int64(p.InUse()), "in_use=" + strconv.Itoa(p.InUse()), nil
	})
	if err != nil {
		return res, err
	}

	err = r.stage(ctx, "writer", "write", func() (int64, string, error) {
		return int64(len(file)), "bytes=" + strconv.Itoa(len(file)), comp.Writer.Write(ctx, set.Output, bytes.NewReader(file))
	})
	if err != nil {
		return res, err
	}
	res.Bytes = len(file)
	return res, nil
}

// CheckPayload 在构建期校验载荷的签名与最小长度。
func CheckPayload(payload []byte, c bridge.Config) error {
	if len(payload) < c.MinPayload {
		return fmt.Errorf("%w: payload is %d bytes, need at least %d", contract.ErrPayloadInvalid, len(payload), c.MinPayload)
	}
	if !bytes.HasPrefix(payload, []byte(c.Magic)) {
		head := payload
		if len(head) > len(c.Magic) {
			head = head[:len(c.Magic)]
		}
		return fmt.Errorf("%w: payload signature % x, want % x", contract.ErrPayloadInvalid, head, []byte(c.Magic))
	}
	return nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Chunker == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if s.Inputs.Engine == "" || s.Inputs.Payload == "" {
		return fmt.Errorf("%w: engine and payload paths are required", contract.ErrInputMissing)
	}
	if s.Output == "" {
		return fmt.Errorf("%w: empty output", contract.ErrPathInvalid)
	}
	return nil
}
