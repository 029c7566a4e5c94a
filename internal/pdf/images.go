package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const (
	defaultImageDPI = 200
	minImageDPI     = 50
	maxImageDPI     = 600
)

// executePDFToImages は Ghostscript でPDFの各ページを画像にレンダリングします。
// 成果物はページごとに1ファイルで、Outputs の順序はページ順と一致します。
func (s *Service) executePDFToImages(ctx context.Context, state *jobState, progress ProgressReporter) (*Result, error) {
	if len(state.files) != 1 {
		return nil, newError(CodeInvalidInput, "画像変換には1つのPDFファイルを指定してください。", nil)
	}
	stored := state.files[0]
	if err := requirePDF(stored); err != nil {
		return nil, err
	}

	format, device, err := normalizeImageFormat(state.manifest.Options.Format)
	if err != nil {
		return nil, err
	}
	dpi, err := normalizeDPI(state.manifest.Options.DPI)
	if err != nil {
		return nil, err
	}

	pages, err := s.pageCount(stored)
	if err != nil {
		return nil, err
	}

	base := outputBase(state.manifest)
	// Ghostscript が %03d をページ番号に展開する
	pattern, err := state.scope.OutputPath(fmt.Sprintf("%s_page_%%03d.%s", base, format))
	if err != nil {
		return nil, classifyStorageError(err)
	}

	reportProgress(progress, "process", 30)
	args := []string{
		"-sDEVICE=" + device,
		fmt.Sprintf("-r%d", dpi),
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		fmt.Sprintf("-sOutputFile=%s", pattern),
		stored.path,
	}
	if err := s.runGhostscript(ctx, args); err != nil {
		return nil, err
	}
	reportProgress(progress, "write", 80)

	produced, err := filepath.Glob(filepath.Join(state.scope.OutDir(),
		fmt.Sprintf("%s_page_*.%s", base, format)))
	if err != nil || len(produced) == 0 {
		return nil, newError(CodeOperationFailed, "ページ画像が生成されませんでした。", err)
	}
	sort.Strings(produced)

	outputs := make([]Output, 0, len(produced))
	for _, path := range produced {
		info, statErr := os.Stat(path)
		if statErr != nil {
			return nil, fmt.Errorf("ページ画像の確認に失敗しました: %w", statErr)
		}
		outputs = append(outputs, Output{Filename: filepath.Base(path), Size: info.Size()})
	}

	reportProgress(progress, "completed", 100)

	return &Result{
		JobID:     state.manifest.JobID,
		Operation: OperationPDFToImages,
		Outputs:   outputs,
		Meta: &ImagesMeta{
			Source: SourceFileMeta{Name: stored.originalName, Size: stored.size, Pages: pages},
			Format: format,
			DPI:    dpi,
			Pages:  len(outputs),
		},
	}, nil
}

// executeImagesToPDF は複数画像を1つのPDFにまとめます。
func (s *Service) executeImagesToPDF(ctx context.Context, state *jobState, progress ProgressReporter) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := make([]string, 0, len(state.files))
	for i, sf := range state.files {
		if err := requireImage(sf); err != nil {
			return nil, err
		}
		inputs = append(inputs, sf.path)
		reportProgress(progress, "load", 10+(20*(i+1))/len(state.files))
	}

	outputName := outputBase(state.manifest) + "_combined.pdf"
	outputPath, err := state.scope.OutputPath(outputName)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	reportProgress(progress, "process", 50)
	if err := api.ImportImagesFile(inputs, outputPath, nil, nil); err != nil {
		return nil, newError(CodeUnsupportedFormat, "画像からのPDF生成に失敗しました。", err)
	}
	reportProgress(progress, "write", 90)

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("生成結果の確認に失敗しました: %w", err)
	}

	reportProgress(progress, "completed", 100)

	return &Result{
		JobID:     state.manifest.JobID,
		Operation: OperationImagesToPDF,
		Outputs:   []Output{{Filename: outputName, Size: outInfo.Size()}},
		Meta: &ImagesMeta{
			Source: SourceFileMeta{Name: state.files[0].originalName, Size: state.files[0].size},
			Format: "pdf",
			Pages:  len(inputs),
		},
	}, nil
}

func normalizeImageFormat(format string) (string, string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "png":
		return "png", "png16m", nil
	case "jpg", "jpeg":
		return "jpeg", "jpeg", nil
	default:
		return "", "", newError(CodeInvalidInput,
			fmt.Sprintf("formatには png または jpeg を指定してください (received: %s)", format), nil)
	}
}

func normalizeDPI(dpi int) (int, error) {
	if dpi == 0 {
		return defaultImageDPI, nil
	}
	if dpi < minImageDPI || dpi > maxImageDPI {
		return 0, newError(CodeInvalidInput,
			fmt.Sprintf("dpiは%dから%dの範囲で指定してください (received: %d)", minImageDPI, maxImageDPI, dpi), nil)
	}
	return dpi, nil
}
