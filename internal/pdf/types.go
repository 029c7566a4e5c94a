package pdf

import "fmt"

// OperationType はPDF処理の種別を表します。
type OperationType string

const (
	OperationMerge       OperationType = "merge"
	OperationSplit       OperationType = "split"
	OperationCompress    OperationType = "compress"
	OperationPDFToOffice OperationType = "pdf-to-office"
	OperationOfficeToPDF OperationType = "office-to-pdf"
	OperationPDFToImages OperationType = "pdf-to-images"
	OperationImagesToPDF OperationType = "images-to-pdf"
	OperationExtractText OperationType = "extract-text"
)

// ParseOperation は操作種別の文字列を検証して返します。
// 未知の種別は UNKNOWN_OPERATION で拒否します。
func ParseOperation(raw string) (OperationType, error) {
	op := OperationType(raw)
	switch op {
	case OperationMerge, OperationSplit, OperationCompress,
		OperationPDFToOffice, OperationOfficeToPDF,
		OperationPDFToImages, OperationImagesToPDF, OperationExtractText:
		return op, nil
	default:
		return "", newError(CodeUnknownOperation, fmt.Sprintf("未対応の操作です: %s", raw), nil)
	}
}

// CompressPreset は圧縮プリセットの種類を表します。
type CompressPreset string

const (
	CompressPresetStandard   CompressPreset = "standard"
	CompressPresetAggressive CompressPreset = "aggressive"
)

// Output は生成された成果物1件を表します。
type Output struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Result はPDF処理の成果を表します。Outputs の順序はダウンロード時の
// インデックスとしてそのまま使われます。
type Result struct {
	JobID     string        `json:"jobId"`
	Operation OperationType `json:"operation"`
	Outputs   []Output      `json:"outputs"`
	Meta      any           `json:"meta,omitempty"`
}

// OutputFilenames は成果物のファイル名を順序どおりに返します。
func (r *Result) OutputFilenames() []string {
	names := make([]string, len(r.Outputs))
	for i, out := range r.Outputs {
		names[i] = out.Filename
	}
	return names
}

// SourceFileMeta は入力ファイルのメタデータです。
type SourceFileMeta struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages,omitempty"`
}

// MergeMeta は結合処理のメタデータです。
type MergeMeta struct {
	TotalPages int              `json:"totalPages"`
	Sources    []SourceFileMeta `json:"sources"`
}

// PageRange は分割対象のページ範囲を表します（Start/Endは1-based, End>=Start）。
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SplitMeta は分割処理のメタデータです。
type SplitMeta struct {
	Original SourceFileMeta `json:"original"`
	Ranges   []PageRange    `json:"ranges"`
}

// CompressMeta は圧縮処理のメタデータです。
type CompressMeta struct {
	OriginalSize int64          `json:"originalSize"`
	OutputSize   int64          `json:"outputSize"`
	SavedBytes   int64          `json:"savedBytes"`
	SavedPercent float64        `json:"savedPercent"`
	Preset       CompressPreset `json:"preset"`
	Source       SourceFileMeta `json:"source"`
}

// ConvertMeta は形式変換処理のメタデータです。
type ConvertMeta struct {
	Source SourceFileMeta `json:"source"`
	Target string         `json:"target"`
}

// ImagesMeta は画像変換処理のメタデータです。
type ImagesMeta struct {
	Source SourceFileMeta `json:"source"`
	Format string         `json:"format"`
	DPI    int            `json:"dpi,omitempty"`
	Pages  int            `json:"pages"`
}

// ExtractMeta はテキスト抽出処理のメタデータです。
type ExtractMeta struct {
	Source     SourceFileMeta `json:"source"`
	Characters int            `json:"characters"`
}
