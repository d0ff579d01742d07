package pdfmark

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
)

// ConcurrentPreviewRenderer 并发渲染器，用于批量生成多页预览
type ConcurrentPreviewRenderer struct {
	renderer   *PreviewRenderer
	maxWorkers int
	workerPool chan struct{}
}

// PreviewJob 预览任务；OutputPath 为空时只渲染不落盘
type PreviewJob struct {
	Page       int
	OutputPath string
}

// PreviewResult 预览结果
type PreviewResult struct {
	Page  int
	Path  string
	Error error
}

// NewConcurrentPreviewRenderer 创建并发渲染器
func NewConcurrentPreviewRenderer(renderer *PreviewRenderer, maxWorkers int) *ConcurrentPreviewRenderer {
	if maxWorkers <= 0 {
		maxWorkers = 4 // 默认 4 个工作线程
	}

	return &ConcurrentPreviewRenderer{
		renderer:   renderer,
		maxWorkers: maxWorkers,
		workerPool: make(chan struct{}, maxWorkers),
	}
}

// RenderPages 并发渲染多个页面，结果顺序与 jobs 一致
// ctx 取消后尚未开始的任务直接以 ctx.Err() 结束
func (cr *ConcurrentPreviewRenderer) RenderPages(ctx context.Context, jobs []PreviewJob) []PreviewResult {
	results := make([]PreviewResult, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		select {
		case cr.workerPool <- struct{}{}:
		case <-ctx.Done():
			results[i] = PreviewResult{Page: job.Page, Path: job.OutputPath, Error: ctx.Err()}
			continue
		}

		wg.Add(1)
		go func(index int, j PreviewJob) {
			defer wg.Done()
			defer func() { <-cr.workerPool }() // 释放槽位

			err := cr.renderOne(ctx, j)
			results[index] = PreviewResult{Page: j.Page, Path: j.OutputPath, Error: err}

			if err != nil {
				LogError("failed to render preview", "page", j.Page, "error", err)
			} else {
				Debug("rendered preview", "page", j.Page, "path", j.OutputPath)
			}
		}(i, job)
	}

	wg.Wait()
	return results
}

func (cr *ConcurrentPreviewRenderer) renderOne(ctx context.Context, j PreviewJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := cr.renderer.RenderPreview(ctx, j.Page)
	if img == nil {
		return err
	}
	if j.OutputPath != "" {
		if werr := WritePNG(img, j.OutputPath); werr != nil {
			return werr
		}
	}
	return err
}

// RenderAllPages 把每一页的预览写到 outputDir/page_N.png
func (cr *ConcurrentPreviewRenderer) RenderAllPages(ctx context.Context, outputDir string) error {
	pageCount := cr.renderer.rc.TotalPages

	jobs := make([]PreviewJob, pageCount)
	for i := 0; i < pageCount; i++ {
		jobs[i] = PreviewJob{
			Page:       i + 1,
			OutputPath: filepath.Join(outputDir, fmt.Sprintf("page_%d.png", i+1)),
		}
	}

	results := cr.RenderPages(ctx, jobs)

	var firstError error
	errorCount := 0
	for _, result := range results {
		if result.Error != nil {
			errorCount++
			if firstError == nil {
				firstError = result.Error
			}
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to render %d pages, first error: %w", errorCount, firstError)
	}

	return nil
}
