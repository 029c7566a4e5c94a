package storage

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

// StatusChecker は実行中ジョブのスコープを掃除対象から外すために使います。
type StatusChecker interface {
	IsRunning(ctx context.Context, jobID string) (bool, error)
}

// Sweeper は保持時間を超えたスコープを定期的に削除します。
// ジョブの完了状態には依存せず、ファイルシステムの作成時刻だけで判断します。
type Sweeper struct {
	manager   *Manager
	retention time.Duration
	checker   StatusChecker
	logger    *log.Logger
}

// NewSweeper は Sweeper を作成します。checker は nil でも構いません。
func NewSweeper(manager *Manager, retention time.Duration, checker StatusChecker, logger *log.Logger) *Sweeper {
	return &Sweeper{
		manager:   manager,
		retention: retention,
		checker:   checker,
		logger:    logger,
	}
}

// Sweep は期限切れスコープを削除します。個々の失敗はログに残して続行し、
// 呼び出し元にはエラーを返しません。
func (s *Sweeper) Sweep(ctx context.Context) {
	owners, err := os.ReadDir(s.manager.Root())
	if err != nil {
		s.logf("sweep: failed to read storage root: %v", err)
		return
	}

	now := time.Now()
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.sweepOwner(ctx, owner.Name(), now)
	}
}

func (s *Sweeper) sweepOwner(ctx context.Context, owner string, now time.Time) {
	ownerDir := filepath.Join(s.manager.Root(), owner)
	entries, err := os.ReadDir(ownerDir)
	if err != nil {
		s.logf("sweep: failed to read owner dir %s: %v", owner, err)
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID := entry.Name()
		scope, err := s.manager.Scope(owner, jobID)
		if err != nil {
			s.logf("sweep: skipping unexpected entry %s/%s: %v", owner, jobID, err)
			continue
		}

		createdAt, err := s.manager.CreatedAt(scope)
		if err != nil {
			// 作成時刻が読めないスコープは期限切れとみなして削除する
			s.remove(scope)
			continue
		}
		if now.Sub(createdAt) <= s.retention {
			continue
		}

		if s.checker != nil {
			running, err := s.checker.IsRunning(ctx, jobID)
			if err != nil {
				s.logf("sweep: status check failed for job %s, keeping scope: %v", jobID, err)
				continue
			}
			if running {
				s.logf("sweep: job %s still running, keeping scope", jobID)
				continue
			}
		}

		s.remove(scope)
	}

	// 空になったオーナーディレクトリは取り除く（失敗しても構わない）
	if remaining, err := os.ReadDir(ownerDir); err == nil && len(remaining) == 0 {
		_ = os.Remove(ownerDir)
	}
}

func (s *Sweeper) remove(scope Scope) {
	if err := s.manager.Remove(scope); err != nil {
		s.logf("sweep: failed to remove scope %s/%s: %v", scope.Owner(), scope.JobID(), err)
		return
	}
	s.logf("sweep: removed expired scope %s/%s", scope.Owner(), scope.JobID())
}

func (s *Sweeper) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
