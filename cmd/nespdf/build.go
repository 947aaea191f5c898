package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "nespdf/internal/config"
	"nespdf/internal/diag"
	"nespdf/internal/watch"
)

// commonFlags 为 build 与 preview 共享的配置覆盖。
type commonFlags struct {
	config    string
	engine    string
	payload   string
	logLevel  string
	inputMode string
}

func (f *commonFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", "", "配置文件（JSON 或 YAML）；缺省读取 ./nespdf.json|nespdf.yaml（若存在）")
	fs.StringVar(&f.engine, "engine", "", "引擎脚本路径（覆盖配置）")
	fs.StringVar(&f.payload, "payload", "", "载荷（ROM）路径，- 表示 STDIN（覆盖配置）")
	fs.StringVar(&f.logLevel, "log-level", "", "日志等级 debug|info|warn|error（覆盖配置）")
	fs.StringVar(&f.inputMode, "input-mode", "", "输入模型 toggle|pulse（覆盖配置）")
}

func (f *commonFlags) overlay() cfgpkg.Config {
	var c cfgpkg.Config
	c.Inputs.Engine = f.engine
	c.Inputs.Payload = f.payload
	c.Logging.Level = f.logLevel
	c.Bridge.InputMode = f.inputMode
	return c
}

type buildFlags struct {
	commonFlags
	out    string
	watch  bool
	status bool
}

func (f *buildFlags) bind(cmd *cobra.Command) {
	f.commonFlags.bind(cmd)
	fs := cmd.Flags()
	fs.StringVar(&f.out, "out", "", "输出 PDF 路径（覆盖配置）")
	fs.BoolVar(&f.watch, "watch", false, "构建后监视输入文件，变化时重新构建")
	fs.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
}

func (a *app) buildCmd() *cobra.Command {
	f := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the PDF from the engine script and payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBuild(cmd.Context(), f)
		},
	}
	f.bind(cmd)
	return cmd
}

// resolveConfig 合并 默认 < 配置文件 < ENV < CLI，并校验。
func resolveConfig(f *commonFlags, over cfgpkg.Config) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	path := f.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		path = cfgpkg.Discover(".")
	}
	switch {
	case path != "":
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, fail(exitConfig, fmt.Errorf("配置解析失败: %w", err))
		}
		cfg = cfgpkg.Merge(cfg, base)
	case os.Getenv(cfgpkg.EnvPrefix+"CONFIG_JSON") != "":
		base, err := cfgpkg.LoadJSON("", []byte(os.Getenv(cfgpkg.EnvPrefix+"CONFIG_JSON")))
		if err != nil {
			return cfg, fail(exitConfig, fmt.Errorf("配置解析失败: %w", err))
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, fail(exitConfig, fmt.Errorf("环境变量解析失败: %w", err))
	}
	cfg = cfgpkg.Merge(cfg, env)
	cfg = cfgpkg.Merge(cfg, over)
	if err := cfgpkg.Validate(cfg); err != nil {
		return cfg, fail(exitConfig, fmt.Errorf("配置校验失败: %w", err))
	}
	return cfg, nil
}

func (a *app) runBuild(ctx context.Context, f *buildFlags) error {
	start := time.Now()
	over := f.overlay()
	over.Output = f.out
	cfg, err := resolveConfig(&f.commonFlags, over)
	if err != nil {
		return err
	}
	logger := diag.NewLogger(a.corrID, cfg.Logging.Level)
	defer logger.Sync()

	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("cli", string(diag.Classify(err)), "preflight", &start)
		return fail(exitConfig, fmt.Errorf("输出目录不可写或无法创建: %w", err))
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("cli", string(diag.Classify(err)), "assemble", &start)
		return fail(exitConfig, fmt.Errorf("装配失败: %w", err))
	}
	logger.DebugStart("config", "effective", "", map[string]string{
		"engine":  set.Inputs.Engine,
		"payload": set.Inputs.Payload,
		"output":  cfg.Output,
		"reader":  cfg.Components.Reader,
		"chunker": cfg.Components.Chunker,
		"writer":  cfg.Components.Writer,
		"mode":    string(set.Bridge.Mode),
		"font":    cfg.Layout.Font,
	})

	term := diag.NewTerminal(a.stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	once := func(ctx context.Context) error {
		res, err := pipelineRun(ctx, comp, set, logger)
		if err != nil {
			if !errors.Is(err, context.Canceled) && f.watch {
				fmt.Fprintf(a.stderr, "运行失败: %v\n", err)
			}
			return err
		}
		fmt.Fprintf(a.stdout, "%s\t%d bytes\t%d objects\txref %d\tid %s\n",
			cfg.Output, res.Bytes, res.Objects, res.XrefSize, res.DocumentID)
		return nil
	}

	if f.watch {
		files := []string{set.Inputs.Engine, set.Inputs.Payload}
		if err := watch.Run(ctx, files, once, watch.Options{Log: logger}); err != nil {
			return fail(exitRuntime, fmt.Errorf("watch: %w", err))
		}
		return nil
	}

	if err := once(ctx); err != nil {
		code := diag.Classify(err)
		logger.Error("cli", string(code), "first error", &start)
		if code == diag.CodeInput {
			return fail(exitConfig, err)
		}
		return fail(exitRuntime, fmt.Errorf("运行失败: %w", err))
	}
	return nil
}

// preflightCheckOutputDir: fs writer 启动前检查输出目录可写性。
// 目录存在则试写临时文件；不存在则检查父目录可写（试建临时目录）。其他 writer 跳过。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	writerName := strings.TrimSpace(cfg.Components.Writer)
	if writerName == "" {
		writerName = cfgpkg.Defaults().Components.Writer
	}
	if writerName != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		dir = filepath.Dir(cfg.Output)
	}
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if err == nil && !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	} else if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(dir)
	if parent == "" || parent == dir {
		return fmt.Errorf("无法确定父目录: %s", dir)
	}
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
