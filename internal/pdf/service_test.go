package pdf

import (
	"errors"
	"testing"
	"time"
)

func TestParseOperation(t *testing.T) {
	valid := []string{
		"merge", "split", "compress",
		"pdf-to-office", "office-to-pdf",
		"pdf-to-images", "images-to-pdf", "extract-text",
	}
	for _, raw := range valid {
		op, err := ParseOperation(raw)
		if err != nil {
			t.Fatalf("ParseOperation(%q) returned error: %v", raw, err)
		}
		if string(op) != raw {
			t.Fatalf("ParseOperation(%q) = %q", raw, op)
		}
	}

	for _, raw := range []string{"", "rotate", "MERGE", "merge "} {
		_, err := ParseOperation(raw)
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Code != CodeUnknownOperation {
			t.Fatalf("ParseOperation(%q) error = %v, want UNKNOWN_OPERATION", raw, err)
		}
	}
}

func TestValidateOrder(t *testing.T) {
	if err := validateOrder([]int{2, 0, 1}, 3); err != nil {
		t.Fatalf("valid permutation rejected: %v", err)
	}

	cases := []struct {
		name  string
		order []int
		count int
	}{
		{"too short", []int{0}, 2},
		{"too long", []int{0, 1, 2}, 2},
		{"out of range", []int{0, 3}, 2},
		{"negative", []int{-1, 0}, 2},
		{"duplicate", []int{1, 1}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateOrder(tc.order, tc.count); err == nil {
				t.Fatalf("validateOrder(%v, %d) succeeded, want error", tc.order, tc.count)
			}
		})
	}
}

func TestNormalizePreset(t *testing.T) {
	for raw, want := range map[CompressPreset]CompressPreset{
		"":           CompressPresetStandard,
		"standard":   CompressPresetStandard,
		"aggressive": CompressPresetAggressive,
		"AGGRESSIVE": CompressPresetAggressive,
	} {
		got, err := normalizePreset(raw)
		if err != nil {
			t.Fatalf("normalizePreset(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("normalizePreset(%q) = %q, want %q", raw, got, want)
		}
	}

	if _, err := normalizePreset("extreme"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

func TestNormalizeImageFormat(t *testing.T) {
	cases := []struct {
		raw    string
		format string
		device string
	}{
		{"", "png", "png16m"},
		{"png", "png", "png16m"},
		{"jpg", "jpeg", "jpeg"},
		{"jpeg", "jpeg", "jpeg"},
		{"JPEG", "jpeg", "jpeg"},
	}
	for _, tc := range cases {
		format, device, err := normalizeImageFormat(tc.raw)
		if err != nil {
			t.Fatalf("normalizeImageFormat(%q) returned error: %v", tc.raw, err)
		}
		if format != tc.format || device != tc.device {
			t.Fatalf("normalizeImageFormat(%q) = (%q, %q), want (%q, %q)",
				tc.raw, format, device, tc.format, tc.device)
		}
	}

	if _, _, err := normalizeImageFormat("gif"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNormalizeDPI(t *testing.T) {
	if dpi, err := normalizeDPI(0); err != nil || dpi != defaultImageDPI {
		t.Fatalf("normalizeDPI(0) = (%d, %v), want default", dpi, err)
	}
	if dpi, err := normalizeDPI(300); err != nil || dpi != 300 {
		t.Fatalf("normalizeDPI(300) = (%d, %v)", dpi, err)
	}
	for _, dpi := range []int{-1, 10, 49, 601, 10000} {
		if _, err := normalizeDPI(dpi); err == nil {
			t.Fatalf("normalizeDPI(%d) succeeded, want error", dpi)
		}
	}
}

func TestGhostscriptCompressArgs(t *testing.T) {
	args := ghostscriptCompressArgs("/out/result.pdf", "/in/input.pdf", CompressPresetStandard)
	assertContains(t, args, "-dPDFSETTINGS=/printer")
	assertContains(t, args, "-sOutputFile=/out/result.pdf")
	if args[len(args)-1] != "/in/input.pdf" {
		t.Fatalf("expected input path last, got %#v", args)
	}

	args = ghostscriptCompressArgs("/out/result.pdf", "/in/input.pdf", CompressPresetAggressive)
	assertContains(t, args, "-dPDFSETTINGS=/screen")
}

func TestSofficeArgs(t *testing.T) {
	args := sofficeArgs("/in/doc.pdf", "/out", "docx")
	assertContains(t, args, "--headless")
	assertContains(t, args, "--convert-to")
	assertContains(t, args, "docx")
	assertContains(t, args, "--outdir")
	if args[len(args)-1] != "/in/doc.pdf" {
		t.Fatalf("expected input path last, got %#v", args)
	}
}

func TestComputeSavedPercent(t *testing.T) {
	if got := computeSavedPercent(1000, 250); got != 75 {
		t.Fatalf("computeSavedPercent(1000, 250) = %v, want 75", got)
	}
	if got := computeSavedPercent(0, 100); got != 0 {
		t.Fatalf("computeSavedPercent(0, 100) = %v, want 0", got)
	}
	if got := computeSavedPercent(100, 150); got != -50 {
		t.Fatalf("computeSavedPercent(100, 150) = %v, want -50", got)
	}
}

func TestOutputBase(t *testing.T) {
	cases := []struct {
		name     string
		manifest *JobManifest
		want     string
	}{
		{"nil manifest", nil, "result"},
		{"no files", &JobManifest{}, "result"},
		{"pdf", &JobManifest{Files: []JobFile{{OriginalName: "invoice.pdf"}}}, "invoice"},
		{"multiple dots", &JobManifest{Files: []JobFile{{OriginalName: "v1.2.report.pdf"}}}, "v1.2.report"},
		{"extension only", &JobManifest{Files: []JobFile{{OriginalName: ".pdf"}}}, "result"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := outputBase(tc.manifest); got != tc.want {
				t.Fatalf("outputBase = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	original := &JobManifest{
		JobID:     "job-1",
		Owner:     "owner-1",
		Operation: OperationSplit,
		Files: []JobFile{
			{StoredName: "001_doc.pdf", OriginalName: "doc.pdf", Size: 1234},
		},
		Options:   Options{Ranges: "1-3,4-"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := writeManifest(dir, original); err != nil {
		t.Fatalf("writeManifest returned error: %v", err)
	}
	loaded, err := loadManifest(dir)
	if err != nil {
		t.Fatalf("loadManifest returned error: %v", err)
	}

	if loaded.JobID != original.JobID || loaded.Owner != original.Owner {
		t.Fatalf("unexpected manifest identity: %#v", loaded)
	}
	if loaded.Operation != OperationSplit {
		t.Fatalf("unexpected operation: %s", loaded.Operation)
	}
	if len(loaded.Files) != 1 || loaded.Files[0].StoredName != "001_doc.pdf" {
		t.Fatalf("unexpected files: %#v", loaded.Files)
	}
	if loaded.Options.Ranges != "1-3,4-" {
		t.Fatalf("unexpected options: %#v", loaded.Options)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	if _, err := loadManifest(t.TempDir()); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestReportProgressClamps(t *testing.T) {
	var gotStage string
	var gotPercent int
	cb := func(stage string, percent int) {
		gotStage = stage
		gotPercent = percent
	}

	reportProgress(cb, "process", -5)
	if gotStage != "process" || gotPercent != 0 {
		t.Fatalf("expected clamp to 0, got (%q, %d)", gotStage, gotPercent)
	}
	reportProgress(cb, "write", 150)
	if gotPercent != 100 {
		t.Fatalf("expected clamp to 100, got %d", gotPercent)
	}
	reportProgress(cb, "load", 42)
	if gotPercent != 42 {
		t.Fatalf("expected passthrough, got %d", gotPercent)
	}

	// nilコールバックは無視される
	reportProgress(nil, "load", 10)
}

func assertContains(t *testing.T, args []string, want string) {
	t.Helper()
	for _, arg := range args {
		if arg == want {
			return
		}
	}
	t.Fatalf("expected %q in args %#v", want, args)
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.pdf":  "application/pdf",
		"a.png":  "image/png",
		"a.jpg":  "image/jpeg",
		"a.txt":  "text/plain; charset=utf-8",
		"a.docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"a.bin":  "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentTypeFor(name); got != want {
			t.Fatalf("ContentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
