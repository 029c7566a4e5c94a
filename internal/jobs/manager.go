package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"mime/multipart"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/hubpdf/internal/config"
	"github.com/yourusername/hubpdf/internal/pdf"
	"github.com/yourusername/hubpdf/internal/storage"
)

const (
	taskTypePDF   = "pdf:process"
	taskTypeSweep = "cleanup:sweep"
	queueName     = "pdf"
)

// TaskPayload はPDF操作ジョブのペイロードです。
type TaskPayload struct {
	JobID     string            `json:"jobId"`
	Owner     string            `json:"owner"`
	Operation pdf.OperationType `json:"operation"`
}

// Manager はジョブの投入・実行・状態参照をまとめたファサードです。
// Web層はこの型だけを通してジョブ基盤に触れます。
type Manager struct {
	cfg        *config.Config
	client     *asynq.Client
	server     *asynq.Server
	scheduler  *asynq.Scheduler
	mux        *asynq.ServeMux
	store      *Store
	pdfService *pdf.Service
	sweeper    *storage.Sweeper
	logger     *log.Logger
}

// NewManager は Manager を初期化し、定期クリーンアップタスクを登録します。
func NewManager(cfg *config.Config, pdfService *pdf.Service, store *Store, sweeper *storage.Sweeper, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if pdfService == nil {
		return nil, errors.New("pdfService is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if sweeper == nil {
		return nil, errors.New("sweeper is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.JobConcurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{})

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:        cfg,
		client:     client,
		server:     server,
		scheduler:  scheduler,
		mux:        mux,
		store:      store,
		pdfService: pdfService,
		sweeper:    sweeper,
		logger:     logger,
	}
	mux.HandleFunc(taskTypePDF, manager.handlePDFTask)
	mux.HandleFunc(taskTypeSweep, manager.handleSweepTask)

	spec := fmt.Sprintf("@every %dm", cfg.SweepIntervalMinutes)
	if _, err := scheduler.Register(spec, asynq.NewTask(taskTypeSweep, nil),
		asynq.Queue(queueName), asynq.MaxRetry(0)); err != nil {
		return nil, fmt.Errorf("failed to register sweep task: %w", err)
	}

	return manager, nil
}

// StartWorkers は Asynq サーバーとスケジューラーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() error {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			m.logf("asynq server stopped with error: %v", err)
		}
	}()
	if err := m.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Shutdown はスケジューラー・サーバー・クライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.scheduler.Shutdown()
	m.server.Shutdown()
	return m.client.Close()
}

// Submit はジョブを登録して実行をキューに投入し、ジョブIDを返します。
// 操作種別の検証は同期的に行い、未知の種別ではレコードもスコープも作りません。
// レコード作成とキュー投入は投入時に1度だけ行われるため、同一ジョブが
// 複数のワーカーへ配られることはありません（リトライも無効）。
func (m *Manager) Submit(ctx context.Context, owner, operation string, files []*multipart.FileHeader, opts pdf.Options) (string, error) {
	op, err := pdf.ParseOperation(operation)
	if err != nil {
		return "", err
	}

	// ジョブIDはダウンロード時のケイパビリティトークンを兼ねるため、
	// 推測不能な128ビット乱数（UUIDv4）を使う
	jobID := uuid.NewString()

	manifest, err := m.pdfService.Prepare(ctx, owner, jobID, op, files, opts)
	if err != nil {
		return "", err
	}

	record := &Record{
		JobID:     jobID,
		Owner:     owner,
		Operation: string(op),
		Status:    StatusPending,
		Progress:  ProgressInfo{Percent: 0, Stage: "queued"},
		CreatedAt: manifest.CreatedAt,
	}
	if err := m.store.Create(ctx, record); err != nil {
		m.discard(owner, jobID)
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{JobID: jobID, Owner: owner, Operation: op})
	if err != nil {
		m.rollback(ctx, owner, jobID)
		return "", err
	}

	task := asynq.NewTask(taskTypePDF, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		m.rollback(ctx, owner, jobID)
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	return jobID, nil
}

// Status はジョブの現在状態を返します。
func (m *Manager) Status(ctx context.Context, jobID string) (*Record, error) {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pdf.NewError(pdf.CodeJobNotFound, "指定されたジョブは存在しません。", nil)
	}
	return record, nil
}

// OpenOutput は完了したジョブの成果物を開きます。
// 未完了は NOT_READY、不正なインデックスは INDEX_OUT_OF_RANGE、
// 掃除済みのファイルは JOB_NOT_FOUND になります。
func (m *Manager) OpenOutput(ctx context.Context, jobID string, index int) (string, *os.File, os.FileInfo, error) {
	record, err := m.Status(ctx, jobID)
	if err != nil {
		return "", nil, nil, err
	}
	if record.Status != StatusCompleted {
		return "", nil, nil, pdf.NewError(pdf.CodeNotReady, "ジョブはまだ完了していません。", nil)
	}
	if index < 0 || index >= len(record.Outputs) {
		return "", nil, nil, pdf.NewError(pdf.CodeIndexOutOfRange,
			fmt.Sprintf("成果物インデックスが範囲外です (outputs: %d)", len(record.Outputs)), nil)
	}

	filename := record.Outputs[index]
	file, info, err := m.pdfService.OpenOutput(record.Owner, jobID, filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, nil, pdf.NewError(pdf.CodeJobNotFound,
				"ジョブの成果物は既に削除されました。", err)
		}
		return "", nil, nil, err
	}
	return filename, file, info, nil
}

func (m *Manager) handlePDFTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		m.logf("failed to decode task payload: %v", err)
		return nil
	}
	if payload.JobID == "" {
		m.logf("task payload missing jobId")
		return nil
	}

	if err := m.store.MarkRunning(ctx, payload.JobID); err != nil {
		// レコードが期限切れ、または既に終端状態 — 実行しない
		m.logf("job %s not runnable: %v", payload.JobID, err)
		return nil
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if m.cfg.JobTimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.JobTimeoutSeconds)*time.Second)
	}
	defer cancel()

	result, err := m.pdfService.RunJob(runCtx, payload.Owner, payload.JobID, func(stage string, percent int) {
		// 進捗更新の失敗はジョブ本体を止めない
		_ = m.store.UpdateProgress(ctx, payload.JobID, ProgressInfo{Stage: stage, Percent: percent})
	})
	if err != nil {
		// 実行中のエラーは呼び出し元へは伝播させず、レコードに分類して記録する。
		// 失敗ジョブの入力スコープは保持時間が切れるまで残り、スイーパーが回収する。
		m.failJob(ctx, payload.JobID, err)
		return nil
	}

	if err := m.store.MarkCompleted(ctx, payload.JobID, result.OutputFilenames(), result.Meta); err != nil {
		m.logf("failed to mark job %s completed: %v", payload.JobID, err)
	}
	return nil
}

func (m *Manager) handleSweepTask(ctx context.Context, task *asynq.Task) error {
	m.sweeper.Sweep(ctx)
	return nil
}

func (m *Manager) failJob(ctx context.Context, jobID string, cause error) {
	errInfo := classifyFailure(cause)
	m.logf("job %s failed: code=%s cause=%v", jobID, errInfo.Code, cause)
	if err := m.store.MarkFailed(ctx, jobID, errInfo); err != nil {
		m.logf("failed to mark job %s failed: %v", jobID, err)
	}
}

// classifyFailure は実行時エラーを利用者へ返せる形に分類します。
// 生のエラー文字列やファイルパスはクライアントへ出しません。
func classifyFailure(err error) *ErrorInfo {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ErrorInfo{
			Code:    pdf.CodeTimeout,
			Message: "処理時間が上限を超えたため中断しました。",
		}
	}
	var apiErr *pdf.Error
	if errors.As(err, &apiErr) {
		return &ErrorInfo{Code: apiErr.Code, Message: apiErr.Message}
	}
	return &ErrorInfo{
		Code:    pdf.CodeInternal,
		Message: "処理中にエラーが発生しました。",
	}
}

func (m *Manager) rollback(ctx context.Context, owner, jobID string) {
	if err := m.store.Delete(ctx, jobID); err != nil {
		m.logf("failed to delete job record %s: %v", jobID, err)
	}
	m.discard(owner, jobID)
}

func (m *Manager) discard(owner, jobID string) {
	if err := m.pdfService.DiscardJob(owner, jobID); err != nil {
		m.logf("failed to discard job scope %s/%s: %v", owner, jobID, err)
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
