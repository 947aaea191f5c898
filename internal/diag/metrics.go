package diag

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// 进程内最小指标（计数器 + 累计耗时），名称：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}
// 仅供终端汇总与测试读取；不做导出。
var metrics = struct {
	mu   sync.Mutex
	ops  map[string]int64
	errs map[string]int64
	durs map[string]int64
}{ops: map[string]int64{}, errs: map[string]int64{}, durs: map[string]int64{}}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	metrics.mu.Lock()
	metrics.ops[key(comp, stage, result)]++
	metrics.mu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metrics.mu.Lock()
	metrics.errs[key(comp, code)]++
	metrics.mu.Unlock()
}

// ObserveDuration 累计阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	metrics.mu.Lock()
	metrics.durs[key(comp, stage)] += durMS
	metrics.mu.Unlock()
}

// OpCount 读取 op_total{comp,stage,result}。
func OpCount(comp, stage, result string) int64 {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	return metrics.ops[key(comp, stage, result)]
}

// ErrorCount 读取 error_total{comp,code}。
func ErrorCount(comp, code string) int64 {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	return metrics.errs[key(comp, code)]
}

// Snapshot 返回按名称排序的 "name=value" 列表（含三类指标）。
func Snapshot() []string {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	out := make([]string, 0, len(metrics.ops)+len(metrics.errs)+len(metrics.durs))
	for k, v := range metrics.ops {
		out = append(out, "op_total{"+k+"}="+strconv.FormatInt(v, 10))
	}
	for k, v := range metrics.errs {
		out = append(out, "error_total{"+k+"}="+strconv.FormatInt(v, 10))
	}
	for k, v := range metrics.durs {
		out = append(out, "op_duration_ms{"+k+"}="+strconv.FormatInt(v, 10))
	}
	sort.Strings(out)
	return out
}

// ResetMetrics 清空全部指标（watch 模式每轮构建前、测试间使用）。
func ResetMetrics() {
	metrics.mu.Lock()
	metrics.ops = map[string]int64{}
	metrics.errs = map[string]int64{}
	metrics.durs = map[string]int64{}
	metrics.mu.Unlock()
}

func key(parts ...string) string { return strings.Join(parts, ",") }
