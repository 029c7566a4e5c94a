package pdf

import (
	"os"
	"strings"
)

// OpenOutput はジョブスコープ内の成果物ファイルを開きます。
// スコープが既に掃除されている場合は fs.ErrNotExist を返します。
func (s *Service) OpenOutput(owner, jobID, filename string) (*os.File, os.FileInfo, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, nil, newError(CodeInvalidInput, "jobId を指定してください。", nil)
	}
	scope, err := s.store.Scope(owner, jobID)
	if err != nil {
		return nil, nil, classifyStorageError(err)
	}
	file, info, err := scope.OpenOutput(filename)
	if err != nil {
		return nil, nil, classifyStorageError(err)
	}
	return file, info, nil
}

// ContentTypeFor は成果物ファイル名から Content-Type を導出します。
func ContentTypeFor(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(filename, ".png"):
		return "image/png"
	case strings.HasSuffix(filename, ".jpeg"), strings.HasSuffix(filename, ".jpg"):
		return "image/jpeg"
	case strings.HasSuffix(filename, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(filename, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(filename, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(filename, ".pptx"):
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return "application/octet-stream"
	}
}
