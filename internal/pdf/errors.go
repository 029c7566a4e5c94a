package pdf

import "fmt"

// エラーコードはAPIレスポンスとジョブレコードの双方で使用します。
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInvalidPath       = "INVALID_PATH"
	CodeUnknownOperation  = "UNKNOWN_OPERATION"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeNotReady          = "NOT_READY"
	CodeIndexOutOfRange   = "INDEX_OUT_OF_RANGE"
	CodeLimitExceeded     = "LIMIT_EXCEEDED"
	CodeUnsupportedPDF    = "UNSUPPORTED_PDF"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeOperationFailed   = "OPERATION_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error は分類済みのエラーを表します。Message はそのまま利用者へ返せる内容とし、
// 内部原因は Err に保持します（クライアントへは出しません）。
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error は error インターフェースを実装します。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は内部原因を返します。
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewError は分類済みエラーを生成します。他パッケージがファサード層の
// エラー（JOB_NOT_FOUND など）を組み立てる際に使用します。
func NewError(code, message string, err error) *Error {
	return newError(code, message, err)
}
