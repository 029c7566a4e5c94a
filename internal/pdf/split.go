package pdf

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// executeSplit は範囲指定によるPDF分割を行います。成果物は範囲ごとに
// 1つのPDFとなり、Outputs の順序は範囲の指定順と一致します。
func (s *Service) executeSplit(ctx context.Context, state *jobState, progress ProgressReporter) (*Result, error) {
	if len(state.files) != 1 {
		return nil, newError(CodeInvalidInput, "分割には1つのPDFファイルを指定してください。", nil)
	}
	stored := state.files[0]
	if err := requirePDF(stored); err != nil {
		return nil, err
	}

	rangesExpr := strings.TrimSpace(state.manifest.Options.Ranges)
	if rangesExpr == "" {
		return nil, newError(CodeInvalidInput, "分割するページ範囲を指定してください。", nil)
	}

	pages, err := s.pageCount(stored)
	if err != nil {
		return nil, err
	}

	ranges, err := parsePageRanges(rangesExpr, pages)
	if err != nil {
		return nil, err
	}

	base := outputBase(state.manifest)
	outputs := make([]Output, 0, len(ranges))

	for i, pr := range ranges {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		partName := fmt.Sprintf("%s_split_%02d.pdf", base, i+1)
		partPath, err := state.scope.OutputPath(partName)
		if err != nil {
			return nil, classifyStorageError(err)
		}

		reportProgress(progress, "process", 20+(60*(i+1))/len(ranges))

		if err := api.CollectFile(stored.path, partPath, buildPageSelection(pr), nil); err != nil {
			return nil, newError(CodeUnsupportedPDF,
				fmt.Sprintf("ページ範囲 %d の生成に失敗しました。", i+1), err)
		}

		info, statErr := os.Stat(partPath)
		if statErr != nil {
			return nil, fmt.Errorf("分割結果の確認に失敗しました: %w", statErr)
		}
		outputs = append(outputs, Output{Filename: partName, Size: info.Size()})
	}

	reportProgress(progress, "completed", 100)

	return &Result{
		JobID:     state.manifest.JobID,
		Operation: OperationSplit,
		Outputs:   outputs,
		Meta: &SplitMeta{
			Original: SourceFileMeta{Name: stored.originalName, Size: stored.size, Pages: pages},
			Ranges:   ranges,
		},
	}, nil
}

// parsePageRanges は "1-3,4,7-" 形式の範囲式を検証して返します。
// 1-based・昇順・重複なし・ページ数の範囲内であることを要求します。
func parsePageRanges(expr string, pageCount int) ([]PageRange, error) {
	segments := strings.Split(expr, ",")
	if len(segments) == 0 {
		return nil, newError(CodeInvalidInput, "範囲指定の形式が正しくありません。", nil)
	}

	ranges := make([]PageRange, 0, len(segments))
	usedPages := make(map[int]struct{})
	lastEnd := 0

	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, newError(CodeInvalidInput, "空の範囲指定が含まれています。", nil)
		}

		start, end, err := parseSingleRange(seg, pageCount)
		if err != nil {
			return nil, err
		}

		if start <= lastEnd {
			return nil, newError(CodeInvalidInput, "ページ範囲は昇順で指定してください。", nil)
		}
		lastEnd = end

		for p := start; p <= end; p++ {
			if _, exists := usedPages[p]; exists {
				return nil, newError(CodeInvalidInput, fmt.Sprintf("ページ %d が重複しています。", p), nil)
			}
			usedPages[p] = struct{}{}
		}

		ranges = append(ranges, PageRange{Start: start, End: end})

		if end == pageCount && i != len(segments)-1 {
			return nil, newError(CodeInvalidInput, "最終ページ指定の後に追加の範囲を指定することはできません。", nil)
		}
	}

	if len(usedPages) == 0 {
		return nil, newError(CodeInvalidInput, "有効なページ範囲が指定されていません。", nil)
	}

	return ranges, nil
}

func parseSingleRange(seg string, pageCount int) (int, int, error) {
	if strings.Contains(seg, "-") {
		parts := strings.SplitN(seg, "-", 2)
		if len(parts) != 2 {
			return 0, 0, newError(CodeInvalidInput, "範囲指定が正しくありません。", nil)
		}
		start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return 0, 0, newError(CodeInvalidInput, "範囲開始が整数ではありません。", nil)
		}
		var end int
		if strings.TrimSpace(parts[1]) == "" {
			end = pageCount
		} else {
			end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return 0, 0, newError(CodeInvalidInput, "範囲終了が整数ではありません。", nil)
			}
		}

		if start < 1 || end < start || end > pageCount {
			return 0, 0, newError(CodeInvalidInput, "範囲指定がページ数の範囲外です。", nil)
		}
		return start, end, nil
	}

	page, err := strconv.Atoi(seg)
	if err != nil {
		return 0, 0, newError(CodeInvalidInput, "ページ番号が整数ではありません。", nil)
	}
	if page < 1 || page > pageCount {
		return 0, 0, newError(CodeInvalidInput, "ページ番号がページ数の範囲外です。", nil)
	}
	return page, page, nil
}

func buildPageSelection(pr PageRange) []string {
	pages := make([]string, 0, pr.End-pr.Start+1)
	for p := pr.Start; p <= pr.End; p++ {
		pages = append(pages, strconv.Itoa(p))
	}
	return pages
}
