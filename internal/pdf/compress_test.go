package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourusername/hubpdf/internal/config"
	"github.com/yourusername/hubpdf/internal/storage"
)

// writeFailingTool は指定パスをstderrへ出力して失敗する実行ファイルを作ります。
func writeFailingTool(t *testing.T, name, leakedPath string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), name)
	body := "#!/bin/sh\necho \"Error: /invalidfileaccess in (" + leakedPath + ")\" 1>&2\nexit 1\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("failed to write stub tool: %v", err)
	}
	return script
}

func newToolTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	store, err := storage.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	svc, err := NewService(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func TestRunGhostscriptFailureHidesPaths(t *testing.T) {
	leaked := "/tmp/hubpdf/owner-1/job-1/in/001_secret.pdf"
	svc := newToolTestService(t, &config.Config{
		GhostscriptPath: writeFailingTool(t, "gs", leaked),
	})

	err := svc.runGhostscript(context.Background(), []string{"-dBATCH"})
	if err == nil {
		t.Fatal("expected error from failing ghostscript")
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeOperationFailed {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(apiErr.Message, "secret") || strings.Contains(apiErr.Message, "/tmp/") {
		t.Fatalf("user-visible message leaks paths: %q", apiErr.Message)
	}
	// 原因側にはstderrを残し、サーバーログから追えるようにする
	if apiErr.Err == nil || !strings.Contains(apiErr.Err.Error(), "001_secret.pdf") {
		t.Fatalf("wrapped cause should carry stderr: %v", apiErr.Err)
	}
}

func TestRunSofficeFailureHidesPaths(t *testing.T) {
	leaked := "/tmp/hubpdf/owner-1/job-1/in/001_secret.docx"
	svc := newToolTestService(t, &config.Config{
		SofficePath: writeFailingTool(t, "soffice", leaked),
	})

	_, err := svc.runSoffice(context.Background(), "/nonexistent/in.docx", t.TempDir(), "pdf")
	if err == nil {
		t.Fatal("expected error from failing soffice")
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != CodeOperationFailed {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(apiErr.Message, "secret") || strings.Contains(apiErr.Message, "/tmp/") {
		t.Fatalf("user-visible message leaks paths: %q", apiErr.Message)
	}
	if apiErr.Err == nil || !strings.Contains(apiErr.Err.Error(), "001_secret.docx") {
		t.Fatalf("wrapped cause should carry stderr: %v", apiErr.Err)
	}
}
