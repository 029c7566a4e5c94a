package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"

	ltpdf "github.com/ledongthuc/pdf"
)

// executeExtractText はPDF本文のプレーンテキストを抽出します。
func (s *Service) executeExtractText(ctx context.Context, state *jobState, progress ProgressReporter) (*Result, error) {
	if len(state.files) != 1 {
		return nil, newError(CodeInvalidInput, "テキスト抽出には1つのPDFファイルを指定してください。", nil)
	}
	stored := state.files[0]
	if err := requirePDF(stored); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := s.pageCount(stored)
	if err != nil {
		return nil, err
	}

	reportProgress(progress, "process", 40)
	file, reader, err := ltpdf.Open(stored.path)
	if err != nil {
		return nil, newError(CodeUnsupportedPDF,
			"PDFの読み込みに失敗しました。ファイルが破損していないか確認してください。", err)
	}
	defer file.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, newError(CodeUnsupportedPDF, "PDFからテキストを抽出できませんでした。", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return nil, newError(CodeUnsupportedPDF, "PDFからテキストを抽出できませんでした。", err)
	}

	reportProgress(progress, "write", 80)

	outputName := outputBase(state.manifest) + "_text.txt"
	outputPath, err := state.scope.OutputPath(outputName)
	if err != nil {
		return nil, classifyStorageError(err)
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o640); err != nil {
		return nil, fmt.Errorf("抽出結果の保存に失敗しました: %w", err)
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("抽出結果の確認に失敗しました: %w", err)
	}

	reportProgress(progress, "completed", 100)

	return &Result{
		JobID:     state.manifest.JobID,
		Operation: OperationExtractText,
		Outputs:   []Output{{Filename: outputName, Size: outInfo.Size()}},
		Meta: &ExtractMeta{
			Source:     SourceFileMeta{Name: stored.originalName, Size: stored.size, Pages: pages},
			Characters: buf.Len(),
		},
	}, nil
}
