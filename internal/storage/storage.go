// Package storage はジョブごとの一時ストレージ（スコープ）の割り当てと掃除を提供します。
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	inDirName      = "in"
	outDirName     = "out"
	markerFilename = ".created"
)

// ErrInvalidPath はスコープ外へ到達しうるファイル名・識別子を示します。
var ErrInvalidPath = errors.New("storage: invalid path")

// Manager は (owner, jobID) ごとのスコープをルートディレクトリ配下で管理します。
type Manager struct {
	root string
}

// NewManager は Manager を作成し、ルートディレクトリを用意します。
func NewManager(root string) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Manager{root: abs}, nil
}

// Root はストレージのルートディレクトリを返します。
func (m *Manager) Root() string {
	return m.root
}

// Scope は1ジョブ分の一時ストレージ名前空間です。
// 入力は in/、成果物は out/ に置かれます。
type Scope struct {
	owner string
	jobID string
	dir   string
}

// Owner はスコープの所有者識別子を返します。
func (s Scope) Owner() string { return s.owner }

// JobID はスコープのジョブIDを返します。
func (s Scope) JobID() string { return s.jobID }

// Dir はスコープのルートディレクトリを返します。
func (s Scope) Dir() string { return s.dir }

// InDir は入力ファイル用ディレクトリを返します。
func (s Scope) InDir() string { return filepath.Join(s.dir, inDirName) }

// OutDir は成果物用ディレクトリを返します。
func (s Scope) OutDir() string { return filepath.Join(s.dir, outDirName) }

// Scope は (owner, jobID) に対応するスコープのパスを計算します。
// ディレクトリが存在するかどうかは確認しません。
func (m *Manager) Scope(owner, jobID string) (Scope, error) {
	if err := validateSegment(owner); err != nil {
		return Scope{}, err
	}
	if err := validateSegment(jobID); err != nil {
		return Scope{}, err
	}
	return Scope{
		owner: owner,
		jobID: jobID,
		dir:   filepath.Join(m.root, owner, jobID),
	}, nil
}

// Allocate はスコープを作成して返します。既に存在する場合は何もしません。
func (m *Manager) Allocate(owner, jobID string) (Scope, error) {
	scope, err := m.Scope(owner, jobID)
	if err != nil {
		return Scope{}, err
	}
	for _, dir := range []string{scope.InDir(), scope.OutDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return Scope{}, fmt.Errorf("failed to create scope directory: %w", err)
		}
	}
	if err := writeMarker(scope.dir); err != nil {
		return Scope{}, err
	}
	return scope, nil
}

// Remove はスコープを再帰的に削除します。既に存在しない場合はエラーにしません。
func (m *Manager) Remove(scope Scope) error {
	if scope.dir == "" {
		return nil
	}
	return os.RemoveAll(scope.dir)
}

// CreatedAt はスコープの作成時刻を返します。
// マーカーファイルが読めない場合はディレクトリの更新時刻で代用します。
func (m *Manager) CreatedAt(scope Scope) (time.Time, error) {
	data, err := os.ReadFile(filepath.Join(scope.dir, markerFilename))
	if err == nil {
		if t, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(string(data))); parseErr == nil {
			return t, nil
		}
	}
	info, err := os.Stat(scope.dir)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// WriteInput はサニタイズしたファイル名で入力ファイルを保存し、
// 保存先パスと書き込んだバイト数を返します。
func (s Scope) WriteInput(filename string, r io.Reader) (string, int64, error) {
	path, err := s.InputPath(filename)
	if err != nil {
		return "", 0, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create input file: %w", err)
	}
	defer file.Close()
	n, err := io.Copy(file, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write input file: %w", err)
	}
	return path, n, nil
}

// OpenOutput は成果物ファイルを開きます。存在しない場合は fs.ErrNotExist を返します。
func (s Scope) OpenOutput(filename string) (*os.File, os.FileInfo, error) {
	path, err := s.OutputPath(filename)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return file, info, nil
}

// InputPath は in/ 配下の安全なパスを返します。
func (s Scope) InputPath(filename string) (string, error) {
	return s.resolve(s.InDir(), filename)
}

// OutputPath は out/ 配下の安全なパスを返します。
func (s Scope) OutputPath(filename string) (string, error) {
	return s.resolve(s.OutDir(), filename)
}

func (s Scope) resolve(dir, filename string) (string, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	// サニタイズ後も必ずディレクトリ内に収まっていることを確認する
	if !strings.HasPrefix(path, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, filename)
	}
	return path, nil
}

// SanitizeFilename はアップロード由来のファイル名を安全な単一セグメントに正規化します。
// パス区切り・NUL・制御文字を含む名前や、空になる名前は ErrInvalidPath で拒否します。
func SanitizeFilename(filename string) (string, error) {
	if strings.ContainsRune(filename, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, filename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, filename)
	}

	var b strings.Builder
	for _, r := range filename {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	name := strings.TrimLeft(strings.TrimSpace(b.String()), ". ")
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, filename)
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name, nil
}

// validateSegment は owner / jobID がパスの1セグメントとして安全であることを確認します。
func validateSegment(segment string) error {
	if segment == "" || segment == "." || segment == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidPath, segment)
	}
	if strings.ContainsAny(segment, "/\\") || strings.ContainsRune(segment, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, segment)
	}
	return nil
}

func writeMarker(dir string) error {
	path := filepath.Join(dir, markerFilename)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	payload := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(payload), 0o640); err != nil {
		return fmt.Errorf("failed to write scope marker: %w", err)
	}
	return nil
}
