package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"plain", "report.pdf", "report.pdf", true},
		{"japanese", "請求書.pdf", "請求書.pdf", true},
		{"spaces trimmed", "  report.pdf  ", "report.pdf", true},
		{"leading dots stripped", "...hidden.pdf", "hidden.pdf", true},
		{"control chars stripped", "re\x01port\x7f.pdf", "report.pdf", true},
		{"traversal slash", "../../etc/passwd", "", false},
		{"traversal backslash", "..\\..\\boot.ini", "", false},
		{"nul byte", "evil\x00.pdf", "", false},
		{"empty", "", "", false},
		{"dot", ".", "", false},
		{"dotdot", "..", "", false},
		{"only dots and spaces", " .. . ", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeFilename(tc.input)
			if tc.ok {
				if err != nil {
					t.Fatalf("SanitizeFilename(%q) returned error: %v", tc.input, err)
				}
				if got != tc.want {
					t.Fatalf("SanitizeFilename(%q) = %q, want %q", tc.input, got, tc.want)
				}
				return
			}
			if err == nil {
				t.Fatalf("SanitizeFilename(%q) = %q, want error", tc.input, got)
			}
			if !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("expected ErrInvalidPath, got %v", err)
			}
		})
	}
}

func TestSanitizeFilenameLongName(t *testing.T) {
	long := strings.Repeat("a", 300) + ".pdf"
	got, err := SanitizeFilename(long)
	if err != nil {
		t.Fatalf("SanitizeFilename returned error: %v", err)
	}
	if len(got) != 255 {
		t.Fatalf("expected 255-byte name, got %d bytes", len(got))
	}
}

func TestScopeRejectsUnsafeSegments(t *testing.T) {
	manager := newTestManager(t)

	for _, segment := range []string{"", ".", "..", "a/b", "a\\b", "x\x00y"} {
		if _, err := manager.Scope(segment, "job-1"); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Scope(owner=%q) error = %v, want ErrInvalidPath", segment, err)
		}
		if _, err := manager.Scope("owner-1", segment); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Scope(jobID=%q) error = %v, want ErrInvalidPath", segment, err)
		}
	}
}

func TestAllocateCreatesScopeDirs(t *testing.T) {
	manager := newTestManager(t)

	scope, err := manager.Allocate("owner-1", "job-1")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	for _, dir := range []string{scope.InDir(), scope.OutDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}

	if _, err := manager.CreatedAt(scope); err != nil {
		t.Fatalf("CreatedAt returned error: %v", err)
	}

	// 再割り当ては冪等
	if _, err := manager.Allocate("owner-1", "job-1"); err != nil {
		t.Fatalf("second Allocate returned error: %v", err)
	}
}

func TestRemoveMissingScopeIsNoop(t *testing.T) {
	manager := newTestManager(t)

	scope, err := manager.Scope("owner-1", "never-allocated")
	if err != nil {
		t.Fatalf("Scope returned error: %v", err)
	}
	if err := manager.Remove(scope); err != nil {
		t.Fatalf("Remove of missing scope returned error: %v", err)
	}
}

func TestWriteInputAndOpenOutput(t *testing.T) {
	manager := newTestManager(t)
	scope, err := manager.Allocate("owner-1", "job-1")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	content := "%PDF-1.4\ndummy\n"
	path, n, err := scope.WriteInput("input.pdf", strings.NewReader(content))
	if err != nil {
		t.Fatalf("WriteInput returned error: %v", err)
	}
	if n != int64(len(content)) {
		t.Fatalf("WriteInput wrote %d bytes, want %d", n, len(content))
	}
	if filepath.Dir(path) != scope.InDir() {
		t.Fatalf("input stored outside in dir: %s", path)
	}

	outPath, err := scope.OutputPath("result.pdf")
	if err != nil {
		t.Fatalf("OutputPath returned error: %v", err)
	}
	if err := os.WriteFile(outPath, []byte(content), 0o640); err != nil {
		t.Fatalf("failed to write output: %v", err)
	}

	file, info, err := scope.OpenOutput("result.pdf")
	if err != nil {
		t.Fatalf("OpenOutput returned error: %v", err)
	}
	defer file.Close()
	if info.Size() != int64(len(content)) {
		t.Fatalf("unexpected output size: %d", info.Size())
	}
}

func TestResolveRejectsEscapingNames(t *testing.T) {
	manager := newTestManager(t)
	scope, err := manager.Allocate("owner-1", "job-1")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	if _, err := scope.InputPath("../escape.pdf"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("InputPath error = %v, want ErrInvalidPath", err)
	}
	if _, _, err := scope.WriteInput("..", strings.NewReader("x")); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("WriteInput error = %v, want ErrInvalidPath", err)
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return manager
}
