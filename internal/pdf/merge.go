package pdf

import (
	"context"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// executeMerge は複数PDFを1つに結合します。Options.Order が指定されている
// 場合は入力ファイルをその並び順で結合します（0-based のインデックス配列）。
func (s *Service) executeMerge(ctx context.Context, state *jobState, progress ProgressReporter) (*Result, error) {
	if len(state.files) < 2 {
		return nil, newError(CodeInvalidInput, "結合には2つ以上のPDFファイルが必要です。", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ordered := state.files
	if order := state.manifest.Options.Order; len(order) > 0 {
		if err := validateOrder(order, len(state.files)); err != nil {
			return nil, err
		}
		ordered = make([]storedFile, len(order))
		for i, idx := range order {
			ordered[i] = state.files[idx]
		}
	}

	totalPages := 0
	sources := make([]SourceFileMeta, 0, len(ordered))
	inputs := make([]string, 0, len(ordered))
	for i, sf := range ordered {
		if err := requirePDF(sf); err != nil {
			return nil, err
		}
		pages, err := s.pageCount(sf)
		if err != nil {
			return nil, err
		}
		totalPages += pages
		sources = append(sources, SourceFileMeta{Name: sf.originalName, Size: sf.size, Pages: pages})
		inputs = append(inputs, sf.path)
		reportProgress(progress, "load", 10+(20*(i+1))/len(ordered))
	}

	outputName := outputBase(state.manifest) + "_merge.pdf"
	outputPath, err := state.scope.OutputPath(outputName)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	reportProgress(progress, "process", 50)
	if err := api.MergeCreateFile(inputs, outputPath, false, nil); err != nil {
		return nil, newError(CodeUnsupportedPDF,
			"PDFの結合に失敗しました。ファイルが破損していないか確認してください。", err)
	}
	reportProgress(progress, "write", 90)

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("結合結果の確認に失敗しました: %w", err)
	}

	reportProgress(progress, "completed", 100)

	return &Result{
		JobID:     state.manifest.JobID,
		Operation: OperationMerge,
		Outputs:   []Output{{Filename: outputName, Size: outInfo.Size()}},
		Meta: &MergeMeta{
			TotalPages: totalPages,
			Sources:    sources,
		},
	}, nil
}

// validateOrder は並び順配列が 0..count-1 の置換であることを確認します。
func validateOrder(order []int, count int) error {
	if len(order) != count {
		return newError(CodeInvalidInput, "order配列の長さがファイル数と一致していません。", nil)
	}

	seen := make([]bool, count)
	for _, idx := range order {
		if idx < 0 || idx >= count {
			return newError(CodeInvalidInput, "order配列に不正な番号が含まれています。", nil)
		}
		if seen[idx] {
			return newError(CodeInvalidInput, "order配列に重複した番号が含まれています。", nil)
		}
		seen[idx] = true
	}

	return nil
}
