package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nespdf/internal/pipeline"
	"nespdf/internal/preview"
)

// 测试替换点。
var (
	pipelineRun = pipeline.Run
	previewRun  = preview.Run
)

var version = "dev"

// 退出码：0 成功；1 运行期失败；3 配置/输入错误。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// exitError 携带退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) error { return &exitError{code: code, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute 解析并执行命令，返回退出码。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}
	a := &app{stdout: stdout, stderr: stderr, corrID: genCorrID()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(ee.err, context.Canceled) {
			fmt.Fprintf(stderr, "nespdf: %v\n", ee.err)
		}
		return ee.code
	}
	// 旗标/参数解析错误
	fmt.Fprintf(stderr, "nespdf: %v\n", err)
	return exitConfig
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	corrID string
}

func (a *app) rootCmd() *cobra.Command {
	bf := &buildFlags{}
	root := &cobra.Command{
		Use:   "nespdf",
		Short: "Package a NES engine script and ROM into a self-running PDF",
		Long: `nespdf embeds an emulator script and a ROM into a single PDF whose
form fields act as the display and whose buttons act as the controller.

Without a subcommand nespdf runs "build".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBuild(cmd.Context(), bf)
		},
	}
	bf.bind(root)
	root.AddCommand(a.buildCmd(), a.verifyCmd(), a.previewCmd(), a.initCmd(), a.versionCmd())
	return root
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "nespdf %s\n", version)
		},
	}
}
