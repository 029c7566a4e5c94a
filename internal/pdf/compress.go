package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// executeCompress は Ghostscript を利用してPDFを圧縮します。
func (s *Service) executeCompress(ctx context.Context, state *jobState, progress ProgressReporter) (*Result, error) {
	if len(state.files) != 1 {
		return nil, newError(CodeInvalidInput, "圧縮には1つのPDFファイルを指定してください。", nil)
	}
	stored := state.files[0]
	if err := requirePDF(stored); err != nil {
		return nil, err
	}

	preset, err := normalizePreset(state.manifest.Options.Preset)
	if err != nil {
		return nil, err
	}

	pages, err := s.pageCount(stored)
	if err != nil {
		return nil, err
	}

	outputName := outputBase(state.manifest) + "_compress.pdf"
	outputPath, err := state.scope.OutputPath(outputName)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	reportProgress(progress, "process", 40)
	if err := s.runGhostscript(ctx, ghostscriptCompressArgs(outputPath, stored.path, preset)); err != nil {
		return nil, err
	}
	reportProgress(progress, "write", 80)

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("圧縮後ファイルの確認に失敗しました: %w", err)
	}

	reportProgress(progress, "completed", 100)

	return &Result{
		JobID:     state.manifest.JobID,
		Operation: OperationCompress,
		Outputs:   []Output{{Filename: outputName, Size: outInfo.Size()}},
		Meta: &CompressMeta{
			OriginalSize: stored.size,
			OutputSize:   outInfo.Size(),
			SavedBytes:   stored.size - outInfo.Size(),
			SavedPercent: computeSavedPercent(stored.size, outInfo.Size()),
			Preset:       preset,
			Source:       SourceFileMeta{Name: stored.originalName, Size: stored.size, Pages: pages},
		},
	}, nil
}

func normalizePreset(p CompressPreset) (CompressPreset, error) {
	switch strings.ToLower(string(p)) {
	case "", string(CompressPresetStandard):
		return CompressPresetStandard, nil
	case string(CompressPresetAggressive):
		return CompressPresetAggressive, nil
	default:
		return "", newError(CodeInvalidInput,
			fmt.Sprintf("presetには standard または aggressive を指定してください (received: %s)", p), nil)
	}
}

func (s *Service) runGhostscript(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, s.cfg.GhostscriptPath, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// stderr にはスコープ内のファイルパスが含まれうるため、利用者向けの
		// Message には載せない。原因はラップしてサーバー側ログにのみ出す。
		return newError(CodeOperationFailed,
			"PDFの処理に失敗しました。ファイルが破損していないか確認してください。",
			fmt.Errorf("ghostscript: %s: %w", strings.TrimSpace(stderr.String()), err))
	}
	return nil
}

func ghostscriptCompressArgs(outputPath, inputPath string, preset CompressPreset) []string {
	setting := "/printer"
	if preset == CompressPresetAggressive {
		setting = "/screen"
	}

	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.5",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		fmt.Sprintf("-dPDFSETTINGS=%s", setting),
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	}
}

func computeSavedPercent(before, after int64) float64 {
	if before == 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}
