// pdfmark - 给 PDF 的每一页加上文字水印
//
// 水印在渲染空间（预览像素，左上角原点）中描述，导出时映射到 PDF 原生坐标。
// 配置文件列出要添加的水印；可以同时输出每页的 PNG 预览。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/novvoo/go-pdf-watermark/pkg/pdfmark"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "Config file path (default: built-in defaults)")
	input := flag.String("in", "", "Input PDF path or http(s) URL")
	output := flag.String("out", "", "Output PDF path (default: <output_name>.pdf)")
	previewDir := flag.String("preview-dir", "", "Directory for per-page PNG previews")
	statePath := flag.String("state", "", "Overlay state file saved by a previous session")
	scale := flag.Float64("scale", 0, "Render scale (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error, none")
	initConfig := flag.Bool("init", false, "Write the default config file and exit")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pdfmark %s\n", version)
		os.Exit(0)
	}

	if *initConfig {
		path := *configPath
		if path == "" {
			path = "pdfmark.yaml"
		}
		if err := pdfmark.InitConfig(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config initialized at: %s\n", path)
		os.Exit(0)
	}

	cfg := pdfmark.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = pdfmark.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *scale != 0 {
		cfg.RenderScale = *scale
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	level, _ := pdfmark.ParseLogLevel(cfg.LogLevel)
	pdfmark.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	pdfmark.SetLogLevel(level)

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: pdfmark -in <file.pdf|url> [-config pdfmark.yaml] [-out out.pdf]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *input, *output, *previewDir, *statePath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *pdfmark.Config, input, output, previewDir, statePath string) error {
	doc, err := loadDocument(ctx, input)
	if err != nil {
		return err
	}

	font, err := cfg.LoadFont()
	if err != nil {
		return err
	}

	editor, err := pdfmark.NewEditor(doc, pdfmark.EditorOptions{
		RenderScale: cfg.RenderScale,
		Compose: pdfmark.ComposeOptions{
			LineHeight: cfg.LineHeight,
			Font:       font,
			FileName:   cfg.OutputName,
		},
	})
	if err != nil {
		return err
	}

	// 已有状态文件时沿用其中的水印，不再应用配置里的水印
	restored := false
	if statePath != "" {
		if f, err := os.Open(statePath); err == nil {
			err = editor.LoadState(f)
			f.Close()
			if err != nil {
				return err
			}
			restored = true
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to open state: %w", err)
		}
	}

	for i, wm := range cfg.Watermarks {
		if restored {
			break
		}
		if len(wm.Pages) == 0 {
			err = editor.ApplyToAllPages(wm.WatermarkDescriptor)
		} else {
			err = editor.ApplyToPages(wm.WatermarkDescriptor, wm.Pages)
		}
		if err != nil {
			return fmt.Errorf("watermark %d: %w", i+1, err)
		}
	}

	if previewDir != "" {
		if err := os.MkdirAll(previewDir, 0755); err != nil {
			return fmt.Errorf("failed to create preview directory: %w", err)
		}
		cr := pdfmark.NewConcurrentPreviewRenderer(editor.PreviewRenderer(), cfg.PreviewWorkers)
		if err := cr.RenderAllPages(ctx, previewDir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	res, err := editor.Export(ctx)
	if err != nil {
		return err
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", w)
	}
	for _, pe := range res.PageErrors {
		fmt.Fprintf(os.Stderr, "Skipped: %v\n", pe)
	}

	if output == "" {
		output = res.FileName
	}
	if err := os.WriteFile(output, res.Data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if statePath != "" {
		if err := saveState(editor, statePath); err != nil {
			return err
		}
	}

	fmt.Printf("Wrote %s (%d pages, %d text draws)\n", output, editor.TotalPages(), res.DrawCount)
	return nil
}

func loadDocument(ctx context.Context, input string) (*pdfmark.Document, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return pdfmark.LoadURL(ctx, input)
	}
	return pdfmark.LoadFile(input)
}

func saveState(editor *pdfmark.Editor, path string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	if err := editor.SaveState(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
