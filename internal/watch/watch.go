// Package watch 在输入文件变化时重新构建。
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"nespdf/internal/diag"
)

// DefaultDebounce 为连续保存合并为一次构建的窗口。
const DefaultDebounce = 300 * time.Millisecond

// Options 为监视参数。
type Options struct {
	Debounce time.Duration
	Log      *diag.Logger
	// OnResult 在每次构建结束后回调（可为 nil）。
	OnResult func(err error)
}

// BuildFunc 执行一次构建。
type BuildFunc func(ctx context.Context) error

// Run 先构建一次，然后监视 files（监视其所在目录并按文件名过滤）。
// 写入/创建/重命名事件在去抖窗口后触发重建；构建错误只报告，不终止循环。
// ctx 取消时返回 nil。"-" 之类的非文件输入会被忽略。
func Run(ctx context.Context, files []string, build BuildFunc, opts Options) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	targets := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, f := range files {
		if f == "" || f == "-" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	if len(targets) == 0 {
		return errors.New("watch: no files to watch")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}

	rebuild := func(reason string) {
		if opts.Log != nil {
			opts.Log.DebugStart("watch", "rebuild", "", map[string]string{"reason": reason})
		}
		err := build(ctx)
		if err != nil && opts.Log != nil && !errors.Is(err, context.Canceled) {
			opts.Log.ErrorWith("watch", string(diag.Classify(err)), "build failed: "+err.Error(), nil, reason)
		}
		diag.IncOp("watch", "rebuild", result(err))
		if opts.OnResult != nil {
			opts.OnResult(err)
		}
	}
	rebuild("initial")

	timer := time.NewTimer(opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	var last string

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, targets) {
				continue
			}
			last = filepath.Base(ev.Name)
			timer.Reset(opts.Debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if opts.Log != nil {
				opts.Log.Warn("watch", "watcher error", map[string]string{"err": err.Error()})
			}
		case <-timer.C:
			if ctx.Err() != nil {
				return nil
			}
			rebuild(last)
		}
	}
}

func relevant(ev fsnotify.Event, targets map[string]struct{}) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	_, ok := targets[abs]
	return ok
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
