// Package pdf はPDF操作のジョブ準備と実行を提供します。
package pdf

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/hubpdf/internal/config"
	"github.com/yourusername/hubpdf/internal/storage"
)

// Service はPDF操作の実行主体です。各操作はジョブスコープ内の
// ファイルだけを読み書きし、相互に状態を共有しません。
type Service struct {
	cfg    *config.Config
	store  *storage.Manager
	logger *log.Logger
	now    func() time.Time
}

// NewService は Service を作成します。
func NewService(cfg *config.Config, store *storage.Manager, logger *log.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("storage manager is nil")
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    time.Now,
	}, nil
}

type storedFile struct {
	path         string
	originalName string
	size         int64
}

// ProgressReporter は実行中の進捗をジョブレコードへ届けるコールバックです。
// ワーカー側で登録され、各操作が節目ごとに呼び出します。
type ProgressReporter func(stage string, percent int)

// reportProgress は percent を 0〜100 に収めてコールバックへ渡します。
// コールバック未登録（nil）のときは何もしません。
func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}

// Prepare はアップロードされた入力をジョブスコープへ保存し、マニフェストを書き込みます。
// 操作固有の深い検証（MIME・ページ数・範囲）は実行時に行い、失敗はジョブの
// FAILED として現れます。ここでの検証は同期的に返すべき最小限に留めます。
func (s *Service) Prepare(ctx context.Context, owner, jobID string, op OperationType, files []*multipart.FileHeader, opts Options) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(files) == 0 {
		return nil, newError(CodeInvalidInput, "アップロードされたファイルが見つかりません。", nil)
	}

	scope, err := s.store.Allocate(owner, jobID)
	if err != nil {
		return nil, classifyStorageError(err)
	}

	stored := make([]storedFile, 0, len(files))
	for i, fh := range files {
		sf, err := s.storeMultipartFile(ctx, fh, scope, i)
		if err != nil {
			_ = s.store.Remove(scope)
			return nil, err
		}
		stored = append(stored, sf)
	}

	manifest := &JobManifest{
		JobID:     jobID,
		Owner:     owner,
		Operation: op,
		Files:     toJobFiles(stored),
		Options:   opts,
		CreatedAt: s.now().UTC(),
	}
	if err := writeManifest(scope.Dir(), manifest); err != nil {
		_ = s.store.Remove(scope)
		return nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}

	return manifest, nil
}

// DiscardJob はジョブスコープを破棄します。キュー投入に失敗した場合などに使います。
func (s *Service) DiscardJob(owner, jobID string) error {
	scope, err := s.store.Scope(owner, jobID)
	if err != nil {
		return classifyStorageError(err)
	}
	return s.store.Remove(scope)
}

func (s *Service) storeMultipartFile(ctx context.Context, fh *multipart.FileHeader, scope storage.Scope, index int) (storedFile, error) {
	if err := ctx.Err(); err != nil {
		return storedFile{}, err
	}
	if fh == nil {
		return storedFile{}, newError(CodeInvalidInput, "ファイルを選択してください。", nil)
	}
	if s.cfg.MaxFileSize > 0 && fh.Size > s.cfg.MaxFileSize {
		return storedFile{}, newError(CodeLimitExceeded,
			fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", s.cfg.MaxFileSize), nil)
	}

	name, err := storage.SanitizeFilename(fh.Filename)
	if err != nil {
		return storedFile{}, classifyStorageError(err)
	}

	src, err := fh.Open()
	if err != nil {
		return storedFile{}, fmt.Errorf("アップロードファイルのオープンに失敗しました: %w", err)
	}
	defer src.Close()

	// 順序保持と名前衝突回避のため、保存名には連番を付ける
	storedName := fmt.Sprintf("%03d_%s", index+1, name)
	path, size, err := scope.WriteInput(storedName, src)
	if err != nil {
		return storedFile{}, classifyStorageError(err)
	}

	return storedFile{
		path:         path,
		originalName: name,
		size:         size,
	}, nil
}

func toJobFiles(stored []storedFile) []JobFile {
	files := make([]JobFile, len(stored))
	for i, sf := range stored {
		files[i] = JobFile{
			StoredName:   filepath.Base(sf.path),
			OriginalName: sf.originalName,
			Size:         sf.size,
		}
	}
	return files
}

func storedFilesFromManifest(scope storage.Scope, manifest *JobManifest) ([]storedFile, error) {
	if manifest == nil {
		return nil, fmt.Errorf("manifest is nil")
	}
	stored := make([]storedFile, len(manifest.Files))
	for i, f := range manifest.Files {
		path, err := scope.InputPath(f.StoredName)
		if err != nil {
			return nil, classifyStorageError(err)
		}
		stored[i] = storedFile{
			path:         path,
			originalName: f.OriginalName,
			size:         f.Size,
		}
	}
	return stored, nil
}

// pageCount は入力PDFのページ数を返し、上限を超える場合は拒否します。
func (s *Service) pageCount(sf storedFile) (int, error) {
	pages, err := api.PageCountFile(sf.path)
	if err != nil {
		return 0, newError(CodeUnsupportedPDF,
			fmt.Sprintf("PDFとして読み込めませんでした: %s", sf.originalName), err)
	}
	if s.cfg.MaxPages > 0 && pages > s.cfg.MaxPages {
		return 0, newError(CodeLimitExceeded,
			fmt.Sprintf("ページ数が上限（%dページ）を超えています。", s.cfg.MaxPages), nil)
	}
	return pages, nil
}

// outputBase は成果物ファイル名の元になる名前を返します（先頭入力の拡張子抜き）。
func outputBase(manifest *JobManifest) string {
	if manifest == nil || len(manifest.Files) == 0 {
		return "result"
	}
	name := manifest.Files[0].OriginalName
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if strings.TrimSpace(base) == "" {
		return "result"
	}
	return base
}

func classifyStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrInvalidPath) {
		return newError(CodeInvalidPath, "ファイル名に使用できない文字が含まれています。", err)
	}
	return err
}
