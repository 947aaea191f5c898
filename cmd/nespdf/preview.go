package main

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nespdf/internal/bridge"
	cfgpkg "nespdf/internal/config"
	"nespdf/internal/diag"
	"nespdf/internal/layout"
	"nespdf/internal/preview"
)

type previewFlags struct {
	commonFlags
	kind  string
	image string
}

func (a *app) previewCmd() *cobra.Command {
	f := &previewFlags{}
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Run the display/input bridge in the terminal",
		Long: `preview drives the same bridge the PDF runs, with terminal fields instead of
form fields. The engine itself only runs inside the viewer, so the preview
uses a stand-in: "pattern" (animated test pattern) or "image" (a picture
scaled to the source resolution).

Keys: arrows move, z/x = B/A, enter = Start, tab = Select, r = Run, q quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPreview(cmd, f)
		},
	}
	f.commonFlags.bind(cmd)
	fs := cmd.Flags()
	fs.StringVar(&f.kind, "engine-kind", preview.EnginePattern, "预览引擎 "+strings.Join(preview.Kinds(), "|"))
	fs.StringVar(&f.image, "image", "", "image 引擎使用的图片（PNG/JPEG/GIF/BMP/WebP）")
	return cmd
}

func (a *app) runPreview(cmd *cobra.Command, f *previewFlags) error {
	ctx := cmd.Context()
	cfg, err := resolveConfig(&f.commonFlags, f.overlay())
	if err != nil {
		return err
	}
	logger := diag.NewLogger(a.corrID, cfg.Logging.Level)
	defer logger.Sync()

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return fail(exitConfig, fmt.Errorf("装配失败: %w", err))
	}
	in, err := comp.Reader.Load(ctx, set.Inputs)
	if err != nil {
		return fail(exitConfig, err)
	}
	plan, err := layout.New(set.Layout)
	if err != nil {
		return fail(exitRuntime, err)
	}
	bc := bridge.FromPlan(set.Bridge, plan)
	ch, err := comp.Chunker.Chunk(ctx, in.Payload)
	if err != nil {
		return fail(exitRuntime, err)
	}

	var img image.Image
	if f.kind == preview.EngineImage {
		fh, err := os.Open(f.image)
		if err != nil {
			return fail(exitConfig, err)
		}
		img, err = preview.LoadImage(fh)
		fh.Close()
		if err != nil {
			return fail(exitConfig, err)
		}
	}
	factory, err := preview.Factory(f.kind, img, bc.SrcWidth, bc.SrcHeight)
	if err != nil {
		return fail(exitConfig, err)
	}
	m, err := preview.New(preview.Options{Config: bc, Encoded: ch.Encoded, Factory: factory, Log: logger})
	if err != nil {
		return fail(exitRuntime, err)
	}
	if err := previewRun(ctx, m); err != nil {
		return fail(exitRuntime, err)
	}
	return nil
}
