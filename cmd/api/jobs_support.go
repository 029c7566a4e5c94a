package main

import (
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/hubpdf/internal/config"
	"github.com/yourusername/hubpdf/internal/jobs"
	"github.com/yourusername/hubpdf/internal/pdf"
	"github.com/yourusername/hubpdf/internal/storage"
)

// setupJobs はストレージ・ジョブストア・ワーカーを組み立てます。
// ジョブレコードのTTLとスコープの保持時間は同じ値を使い、
// 「レコードが消える頃にはファイルも消えている」状態を保ちます。
func setupJobs(cfg *config.Config) (*jobs.Manager, error) {
	logger := log.Default()

	storeManager, err := storage.NewManager(cfg.StorageRoot)
	if err != nil {
		return nil, err
	}

	pdfService, err := pdf.NewService(cfg, storeManager, logger)
	if err != nil {
		return nil, err
	}

	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opt)

	retention := time.Duration(cfg.RetentionMinutes) * time.Minute
	jobStore := jobs.NewStore(redisClient, retention)

	// スイーパーは実行中ジョブのスコープを消さないよう、ジョブストアを照会する
	sweeper := storage.NewSweeper(storeManager, retention, jobStore, logger)

	return jobs.NewManager(cfg, pdfService, jobStore, sweeper, logger)
}
