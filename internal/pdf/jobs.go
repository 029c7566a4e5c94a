package pdf

import (
	"context"
	"fmt"

	"github.com/yourusername/hubpdf/internal/storage"
)

// jobState は1ジョブ分の実行コンテキストです。
type jobState struct {
	scope    storage.Scope
	manifest *JobManifest
	files    []storedFile
}

// RunJob はジョブIDに対応するPDF処理を実行します。入力の深い検証は
// 各操作のハンドラーが行い、検証エラーも通常の失敗として返します。
// スコープの後始末は呼び出し側（ワーカーとスイーパー）に任せます。
func (s *Service) RunJob(ctx context.Context, owner, jobID string, reporter ProgressReporter) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	scope, err := s.store.Scope(owner, jobID)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	manifest, err := loadManifest(scope.Dir())
	if err != nil {
		return nil, newError(CodeJobNotFound, "ジョブの入力ファイルが見つかりません。", err)
	}
	if manifest.Operation == "" {
		return nil, fmt.Errorf("manifest missing operation")
	}

	stored, err := storedFilesFromManifest(scope, manifest)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, newError(CodeInvalidInput, "ジョブに入力ファイルがありません。", nil)
	}

	reportProgress(reporter, "load", 10)

	state := &jobState{scope: scope, manifest: manifest, files: stored}

	switch manifest.Operation {
	case OperationMerge:
		return s.executeMerge(ctx, state, reporter)
	case OperationSplit:
		return s.executeSplit(ctx, state, reporter)
	case OperationCompress:
		return s.executeCompress(ctx, state, reporter)
	case OperationPDFToOffice:
		return s.executePDFToOffice(ctx, state, reporter)
	case OperationOfficeToPDF:
		return s.executeOfficeToPDF(ctx, state, reporter)
	case OperationPDFToImages:
		return s.executePDFToImages(ctx, state, reporter)
	case OperationImagesToPDF:
		return s.executeImagesToPDF(ctx, state, reporter)
	case OperationExtractText:
		return s.executeExtractText(ctx, state, reporter)
	default:
		return nil, newError(CodeUnknownOperation,
			fmt.Sprintf("未対応の操作です: %s", manifest.Operation), nil)
	}
}
