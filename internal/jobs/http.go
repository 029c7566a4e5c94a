package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/hubpdf/internal/pdf"
)

// ContextOwnerKey は、ミドルウェアからハンドラーへオーナー識別子を渡すキーです。
const ContextOwnerKey = "jobs.owner"

// Submitter はジョブを受け付けられるサービスが実装します。
type Submitter interface {
	Submit(ctx context.Context, owner, operation string, files []*multipart.FileHeader, opts pdf.Options) (string, error)
}

// StatusReader はジョブ状態を参照できるサービスが実装します。
type StatusReader interface {
	Status(ctx context.Context, jobID string) (*Record, error)
}

// OutputOpener は完了ジョブの成果物を開けるサービスが実装します。
type OutputOpener interface {
	OpenOutput(ctx context.Context, jobID string, index int) (string, *os.File, os.FileInfo, error)
}

// SubmitHandler は POST /api/pdf/:operation のハンドラーを返します。
// 受理したジョブは 202 とジョブIDを返し、処理結果はポーリングで参照します。
func SubmitHandler(svc Submitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString(ContextOwnerKey)
		if owner == "" {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    pdf.CodeInternal,
				"message": "オーナー識別子が設定されていません。",
			})
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeInvalidInput,
				"message": "multipart/form-data でファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		files := extractFiles(form)
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeInvalidInput,
				"message": "アップロードされたファイルが見つかりません。",
			})
			return
		}

		opts, err := parseOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeInvalidInput,
				"message": err.Error(),
			})
			return
		}

		jobID, err := svc.Submit(c.Request.Context(), owner, c.Param("operation"), files, opts)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
	}
}

// StatusHandler は GET /api/jobs/:id のハンドラーを返します。
func StatusHandler(svc StatusReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeInvalidInput,
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := svc.Status(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"operation": record.Operation,
			"status":    record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
				"message": record.Progress.Message,
			},
			"createdAt": record.CreatedAt,
			"updatedAt": record.UpdatedAt,
		}
		if record.Status == StatusCompleted {
			payload["outputs"] = record.Outputs
			if record.Meta != nil {
				payload["meta"] = record.Meta
			}
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

// DownloadHandler は GET /api/jobs/:id/download/:index のハンドラーを返します。
// ジョブIDの所持のみを認可とみなします（推測不能な128ビット乱数）。
func DownloadHandler(svc OutputOpener) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeInvalidInput,
				"message": "jobId を指定してください。",
			})
			return
		}
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    pdf.CodeInvalidInput,
				"message": "成果物インデックスは整数で指定してください。",
			})
			return
		}

		filename, file, info, err := svc.OpenOutput(c.Request.Context(), jobID, index)
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer file.Close()

		contentType := pdf.ContentTypeFor(filename)
		encodedName := url.PathEscape(filename)
		// 引用符を含む名前がヘッダーの quoted-string を壊さないようにする。
		// 正確な名前は filename* 側（パーセントエンコード済み）が持つ。
		quotedName := strings.NewReplacer("\\", "_", "\"", "_").Replace(filename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", quotedName, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", jobID)
		c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
	}
}

func extractFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File["files[]"]; len(files) > 0 {
		return files
	}
	if files := form.File["files"]; len(files) > 0 {
		return files
	}
	if files := form.File["file"]; len(files) > 0 {
		return files
	}
	return nil
}

func parseOptions(c *gin.Context) (pdf.Options, error) {
	opts := pdf.Options{
		Ranges: strings.TrimSpace(c.PostForm("ranges")),
		Preset: pdf.CompressPreset(strings.TrimSpace(c.PostForm("preset"))),
		Target: strings.TrimSpace(c.PostForm("target")),
		Format: strings.TrimSpace(c.PostForm("format")),
	}

	order, err := parseOrder(c)
	if err != nil {
		return pdf.Options{}, err
	}
	opts.Order = order

	if raw := strings.TrimSpace(c.PostForm("dpi")); raw != "" {
		dpi, err := strconv.Atoi(raw)
		if err != nil {
			return pdf.Options{}, errors.New("dpi は整数で指定してください。")
		}
		opts.DPI = dpi
	}

	return opts, nil
}

func parseOrder(c *gin.Context) ([]int, error) {
	raw := strings.TrimSpace(c.PostForm("order"))
	if raw != "" {
		var order []int
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, errors.New("order は JSON 形式の整数配列で指定してください。例: [0,1,2]")
		}
		return order, nil
	}

	if values := c.PostFormArray("order[]"); len(values) > 0 {
		order := make([]int, len(values))
		for i, v := range values {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				return nil, errors.New("order[] に空の値が含まれています。")
			}
			num, err := strconv.Atoi(trimmed)
			if err != nil {
				return nil, errors.New("order[] の値は整数で指定してください。")
			}
			order[i] = num
		}
		return order, nil
	}

	return nil, nil
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *pdf.Error
	switch {
	case errors.As(err, &apiErr):
		c.JSON(statusForCode(apiErr.Code), gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    pdf.CodeInternal,
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func statusForCode(code string) int {
	switch code {
	case pdf.CodeJobNotFound, pdf.CodeIndexOutOfRange:
		return http.StatusNotFound
	case pdf.CodeNotReady:
		return http.StatusConflict
	case pdf.CodeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case pdf.CodeUnknownOperation, pdf.CodeInvalidInput, pdf.CodeInvalidPath:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
