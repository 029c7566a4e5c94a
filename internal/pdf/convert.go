package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// pdf-to-office の変換先として受け付ける形式。
var officeTargets = map[string]struct{}{
	"docx": {},
	"xlsx": {},
	"pptx": {},
}

// executePDFToOffice は LibreOffice を利用してPDFをOffice文書へ変換します。
func (s *Service) executePDFToOffice(ctx context.Context, state *jobState, progress ProgressReporter) (*Result, error) {
	if len(state.files) != 1 {
		return nil, newError(CodeInvalidInput, "変換には1つのPDFファイルを指定してください。", nil)
	}
	stored := state.files[0]
	if err := requirePDF(stored); err != nil {
		return nil, err
	}

	target := strings.ToLower(strings.TrimSpace(state.manifest.Options.Target))
	if _, ok := officeTargets[target]; !ok {
		return nil, newError(CodeInvalidInput,
			fmt.Sprintf("targetには docx / xlsx / pptx のいずれかを指定してください (received: %s)", target), nil)
	}

	pages, err := s.pageCount(stored)
	if err != nil {
		return nil, err
	}

	return s.convertWithSoffice(ctx, state, stored, target,
		outputBase(state.manifest)+"_convert."+target,
		&ConvertMeta{
			Source: SourceFileMeta{Name: stored.originalName, Size: stored.size, Pages: pages},
			Target: target,
		}, progress)
}

// executeOfficeToPDF は LibreOffice を利用してOffice文書をPDFへ変換します。
func (s *Service) executeOfficeToPDF(ctx context.Context, state *jobState, progress ProgressReporter) (*Result, error) {
	if len(state.files) != 1 {
		return nil, newError(CodeInvalidInput, "変換には1つのOffice文書を指定してください。", nil)
	}
	stored := state.files[0]
	if err := requireOffice(stored); err != nil {
		return nil, err
	}

	return s.convertWithSoffice(ctx, state, stored, "pdf",
		outputBase(state.manifest)+"_convert.pdf",
		&ConvertMeta{
			Source: SourceFileMeta{Name: stored.originalName, Size: stored.size},
			Target: "pdf",
		}, progress)
}

func (s *Service) convertWithSoffice(ctx context.Context, state *jobState, stored storedFile, target, outputName string, meta *ConvertMeta, progress ProgressReporter) (*Result, error) {
	outputPath, err := state.scope.OutputPath(outputName)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	reportProgress(progress, "process", 40)
	produced, err := s.runSoffice(ctx, stored.path, state.scope.OutDir(), target)
	if err != nil {
		return nil, err
	}

	if produced != outputPath {
		if err := os.Rename(produced, outputPath); err != nil {
			return nil, fmt.Errorf("変換結果の移動に失敗しました: %w", err)
		}
	}
	reportProgress(progress, "write", 80)

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("変換結果の確認に失敗しました: %w", err)
	}

	reportProgress(progress, "completed", 100)

	return &Result{
		JobID:     state.manifest.JobID,
		Operation: state.manifest.Operation,
		Outputs:   []Output{{Filename: outputName, Size: outInfo.Size()}},
		Meta:      meta,
	}, nil
}

// runSoffice は soffice --headless を実行し、生成されたファイルのパスを返します。
func (s *Service) runSoffice(ctx context.Context, inputPath, outDir, target string) (string, error) {
	args := sofficeArgs(inputPath, outDir, target)

	cmd := exec.CommandContext(ctx, s.cfg.SofficePath, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// stderr のパス情報は利用者へ返さず、ラップした原因として残す
		return "", newError(CodeOperationFailed,
			"文書の変換に失敗しました。ファイル形式を確認してください。",
			fmt.Errorf("soffice: %s: %w", strings.TrimSpace(stderr.String()), err))
	}

	// soffice は <入力ファイルの stem>.<target> という名前で出力する
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	produced := filepath.Join(outDir, stem+"."+target)
	if _, err := os.Stat(produced); err != nil {
		return "", newError(CodeOperationFailed, "LibreOfficeが出力ファイルを生成しませんでした。", err)
	}
	return produced, nil
}

func sofficeArgs(inputPath, outDir, target string) []string {
	return []string{
		"--headless",
		"--invisible",
		"--nodefault",
		"--norestore",
		"--nologo",
		"--convert-to", target,
		"--outdir", outDir,
		inputPath,
	}
}
