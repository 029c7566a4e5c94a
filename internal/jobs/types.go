// Package jobs は非同期ジョブの登録・状態管理・実行を提供します。
package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal は終端状態かどうかを返します。終端状態からの遷移は認められません。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// canTransition はジョブの状態遷移が許可されているかを返します。
// 許可されるのは pending→running と running→{completed,failed} のみです。
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。Outputs が空でないことと
// Status が completed であることは常に同値です。Meta には操作ごとの
// 結果メタデータ（ページ数、削減率など）が完了時に保存されます。
type Record struct {
	JobID     string       `json:"jobId"`
	Owner     string       `json:"owner"`
	Operation string       `json:"operation"`
	Status    Status       `json:"status"`
	Progress  ProgressInfo `json:"progress"`
	Outputs   []string     `json:"outputs,omitempty"`
	Meta      any          `json:"meta,omitempty"`
	Error     *ErrorInfo   `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
}
