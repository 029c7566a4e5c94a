// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/hubpdf/internal/config"
	"github.com/yourusername/hubpdf/internal/jobs"
)

// ownerCookieName は匿名オーナーを識別するセッションCookieの名前です。
const ownerCookieName = "hubpdf_session"

// ownerSessionKey はセッション内に保存するオーナーIDのキーです。
const ownerSessionKey = "owner_id"

// ownerCookieMaxAge はCookieの有効期限（秒）です。ジョブの保持時間より
// 長く保つことで、同一オーナーのスコープをまとめて掃除できます。
const ownerCookieMaxAge = 7 * 24 * 60 * 60

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxFileSize

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   ownerCookieMaxAge,
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(ownerCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ジョブ基盤（ストレージ・キュー・ワーカー）の構築
	manager, err := setupJobs(cfg)
	if err != nil {
		log.Fatalf("Failed to set up job infrastructure: %v", err)
	}
	if err := manager.StartWorkers(); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	// ルーティングの設定
	setupRoutes(router, manager)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// anonymousOwner は匿名オーナーIDをセッションから復元し、なければ発行します。
// ログイン不要のサービスなので、Cookieの所持がそのままオーナー性になります。
func anonymousOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		owner, _ := session.Get(ownerSessionKey).(string)
		if owner == "" {
			owner = uuid.NewString()
			session.Set(ownerSessionKey, owner)
			if err := session.Save(); err != nil {
				log.Printf("failed to save owner session: %v", err)
			}
		}
		c.Set(jobs.ContextOwnerKey, owner)
		c.Next()
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "hubpdf-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, manager *jobs.Manager) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	api.Use(anonymousOwner())
	{
		api.POST("/pdf/:operation", jobs.SubmitHandler(manager))

		jobRoutes := api.Group("/jobs")
		{
			jobRoutes.GET("/:id", jobs.StatusHandler(manager))
			// ダウンロードの認可はジョブID（128ビット乱数）の所持のみ
			jobRoutes.GET("/:id/download/:index", jobs.DownloadHandler(manager))
		}
	}
}
