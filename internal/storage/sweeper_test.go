package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type stubChecker struct {
	running map[string]bool
	err     error
}

func (s *stubChecker) IsRunning(ctx context.Context, jobID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.running[jobID], nil
}

func TestSweepRemovesExpiredScopes(t *testing.T) {
	manager := newTestManager(t)
	expired := allocateAged(t, manager, "owner-1", "job-old", 2*time.Hour)
	fresh, err := manager.Allocate("owner-1", "job-new")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	sweeper := NewSweeper(manager, 30*time.Minute, nil, nil)
	sweeper.Sweep(context.Background())

	if _, err := os.Stat(expired.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected expired scope to be removed, stat err=%v", err)
	}
	if _, err := os.Stat(fresh.Dir()); err != nil {
		t.Fatalf("expected fresh scope to survive: %v", err)
	}
}

func TestSweepSkipsRunningJobs(t *testing.T) {
	manager := newTestManager(t)
	scope := allocateAged(t, manager, "owner-1", "job-running", 2*time.Hour)

	checker := &stubChecker{running: map[string]bool{"job-running": true}}
	sweeper := NewSweeper(manager, 30*time.Minute, checker, nil)
	sweeper.Sweep(context.Background())

	if _, err := os.Stat(scope.Dir()); err != nil {
		t.Fatalf("expected running scope to survive: %v", err)
	}
}

func TestSweepKeepsScopeOnCheckerError(t *testing.T) {
	manager := newTestManager(t)
	scope := allocateAged(t, manager, "owner-1", "job-unknown", 2*time.Hour)

	checker := &stubChecker{err: errors.New("redis unavailable")}
	sweeper := NewSweeper(manager, 30*time.Minute, checker, nil)
	sweeper.Sweep(context.Background())

	if _, err := os.Stat(scope.Dir()); err != nil {
		t.Fatalf("expected scope to survive checker error: %v", err)
	}
}

func TestSweepPrunesEmptyOwnerDirs(t *testing.T) {
	manager := newTestManager(t)
	scope := allocateAged(t, manager, "owner-1", "job-old", 2*time.Hour)

	sweeper := NewSweeper(manager, 30*time.Minute, nil, nil)
	sweeper.Sweep(context.Background())

	ownerDir := filepath.Dir(scope.Dir())
	if _, err := os.Stat(ownerDir); !os.IsNotExist(err) {
		t.Fatalf("expected empty owner dir to be pruned, stat err=%v", err)
	}
}

func TestSweepRemovesScopeWithUnreadableMarker(t *testing.T) {
	manager := newTestManager(t)
	scope, err := manager.Allocate("owner-1", "job-broken")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	// マーカーを壊し、ディレクトリの更新時刻も過去に倒す
	if err := os.WriteFile(filepath.Join(scope.Dir(), markerFilename), []byte("not a timestamp\n"), 0o640); err != nil {
		t.Fatalf("failed to corrupt marker: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(scope.Dir(), past, past); err != nil {
		t.Fatalf("failed to age scope dir: %v", err)
	}

	sweeper := NewSweeper(manager, 30*time.Minute, nil, nil)
	sweeper.Sweep(context.Background())

	if _, err := os.Stat(scope.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected scope to be removed, stat err=%v", err)
	}
}

// allocateAged はスコープを作成し、作成時刻を指定分だけ過去に戻します。
func allocateAged(t *testing.T, manager *Manager, owner, jobID string, age time.Duration) Scope {
	t.Helper()
	scope, err := manager.Allocate(owner, jobID)
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	created := time.Now().Add(-age).UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(filepath.Join(scope.Dir(), markerFilename), []byte(created), 0o640); err != nil {
		t.Fatalf("failed to backdate marker: %v", err)
	}
	return scope
}
