package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/hubpdf/internal/pdf"
)

const (
	jobKeyPrefix = "job:"
)

// Store はジョブ状態を Redis に保存します。レコードは保持時間のTTL付きで
// 書き込まれるため、レジストリが際限なく成長することはありません。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はジョブ情報を取得します。存在しない（または期限切れの）場合は nil を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create は新しいジョブレコードを登録します。既存IDとの衝突はエラーにします
// （IDは128ビット乱数なので実際には起こらない想定）。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("record.JobID is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, jobKey(record.JobID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job already exists: %s", record.JobID)
	}
	return nil
}

// Delete はジョブレコードを削除します。キュー投入に失敗した場合の巻き戻しに使います。
func (s *Store) Delete(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, jobKey(jobID)).Err()
}

// MarkRunning はジョブを実行中に遷移させます。
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		if err := checkTransition(record, StatusRunning); err != nil {
			return err
		}
		record.Status = StatusRunning
		record.Progress = ProgressInfo{Percent: 0, Stage: "load"}
		return nil
	})
}

// MarkCompleted はジョブ完了時の情報を保存します。outputs は空にできません。
// meta は操作ごとの結果メタデータで、そのままレコードに保存されます。
func (s *Store) MarkCompleted(ctx context.Context, jobID string, outputs []string, meta any) error {
	if len(outputs) == 0 {
		return fmt.Errorf("completed job requires outputs: %s", jobID)
	}
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		if err := checkTransition(record, StatusCompleted); err != nil {
			return err
		}
		record.Status = StatusCompleted
		record.Progress = ProgressInfo{Percent: 100, Stage: "completed"}
		record.Outputs = outputs
		record.Meta = meta
		record.Error = nil
		return nil
	})
}

// MarkFailed はジョブ失敗時の情報を保存します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		if err := checkTransition(record, StatusFailed); err != nil {
			return err
		}
		record.Status = StatusFailed
		record.Outputs = nil
		if errInfo != nil {
			record.Error = errInfo
		}
		return nil
	})
}

// UpdateProgress は進捗を更新します。終端状態のレコードには適用されません。
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress ProgressInfo) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		if record.Status.Terminal() {
			return pdf.NewError(pdf.CodeInvalidTransition,
				"終了したジョブの進捗は更新できません。", nil)
		}
		record.Progress = progress
		return nil
	})
}

// IsRunning はジョブが実行中かどうかを返します。スイーパーが掃除対象の
// 判定に使用します。レコードが存在しない場合は false です。
func (s *Store) IsRunning(ctx context.Context, jobID string) (bool, error) {
	record, err := s.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return record != nil && record.Status == StatusRunning, nil
}

func checkTransition(record *Record, to Status) error {
	if !canTransition(record.Status, to) {
		return pdf.NewError(pdf.CodeInvalidTransition,
			fmt.Sprintf("ジョブは %s から %s へ遷移できません。", record.Status, to), nil)
	}
	return nil
}

// updatePartial は WATCH による楽観ロックでレコードを読み・変更・書き戻します。
// 読み取りから書き込みの間に他の書き手がキーを触った場合は読み直して再試行します。
func (s *Store) updatePartial(ctx context.Context, jobID string, mutate func(*Record) error) error {
	key := jobKey(jobID)
	for {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					return pdf.NewError(pdf.CodeJobNotFound,
						fmt.Sprintf("指定されたジョブは存在しません: %s", jobID), nil)
				}
				return err
			}
			var record Record
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			if err := mutate(&record); err != nil {
				return err
			}
			record.UpdatedAt = time.Now().UTC()
			payload, err := json.Marshal(&record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, payload, s.ttl)
				return nil
			})
			return err
		}, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
