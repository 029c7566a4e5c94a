package pdf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestFilename = "manifest.json"

// Options は操作ごとの追加パラメータです。該当しないフィールドは無視されます。
type Options struct {
	Order  []int          `json:"order,omitempty"`  // merge: 入力ファイルの並び順
	Ranges string         `json:"ranges,omitempty"` // split: ページ範囲式（例: "1-3,4,7-"）
	Preset CompressPreset `json:"preset,omitempty"` // compress: 圧縮プリセット
	Target string         `json:"target,omitempty"` // pdf-to-office: 変換先形式 (docx/xlsx/pptx)
	Format string         `json:"format,omitempty"` // pdf-to-images: 画像形式 (png/jpeg)
	DPI    int            `json:"dpi,omitempty"`    // pdf-to-images: 解像度
}

// JobManifest はジョブに必要な情報を保持します。スコープ直下に保存され、
// ワーカーはこれだけを頼りに処理を再開できます。
type JobManifest struct {
	JobID     string        `json:"jobId"`
	Owner     string        `json:"owner"`
	Operation OperationType `json:"operation"`
	Files     []JobFile     `json:"files"`
	Options   Options       `json:"options"`
	CreatedAt time.Time     `json:"createdAt"`
}

// JobFile はジョブ入力ファイルのメタデータを表します。
type JobFile struct {
	StoredName   string `json:"storedName"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

func writeManifest(jobDir string, manifest *JobManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	path := filepath.Join(jobDir, manifestFilename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

func loadManifest(jobDir string) (*JobManifest, error) {
	path := filepath.Join(jobDir, manifestFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest JobManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}
