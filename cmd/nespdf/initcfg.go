package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "nespdf/internal/config"
)

func (a *app) initCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default config and .env template (never overwrites)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			name := "nespdf.json"
			switch strings.ToLower(format) {
			case "json", "":
			case "yaml", "yml":
				name = "nespdf.yaml"
			default:
				return fail(exitConfig, fmt.Errorf("unknown format %q", format))
			}
			if dir == "-" {
				return writeConfig(a, "-"+filepath.Ext(name), cfgpkg.DefaultTemplateConfig())
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fail(exitConfig, fmt.Errorf("生成默认配置失败: %w", err))
			}
			path := filepath.Join(dir, name)
			if err := writeConfig(a, path, cfgpkg.DefaultTemplateConfig()); err != nil {
				return fail(exitConfig, fmt.Errorf("生成默认配置失败: %w", err))
			}
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fmt.Fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "配置格式 json|yaml")
	return cmd
}

// writeConfig 按扩展名编码；"-" 开头写到 stdout；文件已存在时失败（不覆盖）。
func writeConfig(a *app, path string, c cfgpkg.Config) error {
	b, err := cfgpkg.Encode(c, path)
	if err != nil {
		return err
	}
	if strings.HasPrefix(path, "-") {
		_, err = a.stdout.Write(b)
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(b)
	return err
}

// writeDotEnv 生成 .env 模板；已存在则跳过，不合并。
func writeDotEnv(path string) error {
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}
	var b strings.Builder
	b.WriteString("# nespdf .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("NESPDF_CONFIG_FILE=\n")
	b.WriteString("NESPDF_CONFIG_JSON=\n\n")

	b.WriteString("# 输入与输出\n")
	b.WriteString("NESPDF_ENGINE=\n")
	b.WriteString("NESPDF_PAYLOAD=\n")
	b.WriteString("NESPDF_OUTPUT=\n")
	b.WriteString("NESPDF_LOG_LEVEL=\n")
	b.WriteString("NESPDF_STRICT_PAYLOAD=\n")
	b.WriteString("NESPDF_FONT=\n\n")

	b.WriteString("# 桥接参数\n")
	b.WriteString("NESPDF_INPUT_MODE=\n")
	b.WriteString("NESPDF_FRAME_MS=\n")
	b.WriteString("NESPDF_START_DELAY_MS=\n")
	b.WriteString("NESPDF_WARMUP_FRAMES=\n")
	b.WriteString("NESPDF_STATUS_EVERY=\n")
	b.WriteString("NESPDF_PULSE_MS=\n")
	b.WriteString("NESPDF_ENGINE_NS=\n\n")

	b.WriteString("# 组件选择与选项\n")
	b.WriteString("NESPDF_COMPONENTS_READER=\n")
	b.WriteString("NESPDF_COMPONENTS_CHUNKER=\n")
	b.WriteString("NESPDF_COMPONENTS_WRITER=\n")
	b.WriteString("NESPDF_OPTIONS_READER_JSON=\n")
	b.WriteString("NESPDF_OPTIONS_CHUNKER_JSON=\n")
	b.WriteString("NESPDF_OPTIONS_WRITER_JSON=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
