package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"pomelo/internal/config"
	"pomelo/internal/generation"
	"pomelo/internal/handler"
	"pomelo/internal/pkg/abort"
	"pomelo/internal/pkg/cache"
	"pomelo/internal/pkg/jwt"
	"pomelo/internal/pkg/mongodb"
	"pomelo/internal/pkg/ratelimit"
	"pomelo/internal/repository"
	"pomelo/internal/server/middleware"
	"pomelo/internal/service"
	"pomelo/internal/websearch"
)

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	mongo  *mongodb.Client
	redis  *cache.RedisCache
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化 MongoDB (可选)
	var mongoClient *mongodb.Client
	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, continuing without it")
		} else {
			mongoClient = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			// 创建索引
			if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
		}
	}

	// 初始化 Redis (可选)
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	srv := &Server{
		cfg:    cfg,
		engine: engine,
		mongo:  mongoClient,
		redis:  redisCache,
	}

	// 设置路由
	srv.setupRoutes()

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	var validator *jwt.Validator
	if s.cfg.Auth.JWTSecret != "" {
		validator = jwt.NewValidator(s.cfg.Auth.JWTSecret)
	} else {
		log.Warn().Msg("JWT secret not configured, all sessions are anonymous")
	}

	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())
	s.engine.Use(middleware.Session(validator))

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		if s.mongo == nil {
			log.Warn().Msg("MongoDB not configured, conversation endpoints disabled")
			return
		}

		convRepo := repository.NewConversationRepo(s.mongo.Database(), s.redis)

		// 取消信号：多实例部署共享 Redis，单实例退化为内存表
		var aborts abort.Store
		var limiter *ratelimit.Limiter
		if s.redis != nil {
			aborts = abort.NewRedisStore(s.redis.Client())
			limiter = ratelimit.New(s.redis.Client(), s.cfg.Chat.RateLimit)
		} else {
			aborts = abort.NewMemoryStore()
		}

		// 联网搜索 (可选)
		var search service.SearchRunner
		if s.cfg.WebSearch.Enabled && s.cfg.WebSearch.ProviderURL != "" && s.cfg.WebSearch.SimilarityURL != "" {
			defaultModel, ok := s.cfg.DefaultModel()
			if !ok {
				log.Warn().Msg("no model configured, web search disabled")
			} else {
				search = websearch.New(
					generation.NewClient(defaultModel),
					websearch.NewSearchClient(s.cfg.WebSearch.ProviderURL, s.cfg.WebSearch.APIKey),
					websearch.NewSimilarityClient(s.cfg.WebSearch.SimilarityURL),
					websearch.NewHTMLFetcher(s.cfg.WebSearch.FetchTimeout),
				)
				log.Info().Str("provider", s.cfg.WebSearch.ProviderURL).Msg("web search enabled")
			}
		}

		chatSvc := service.NewChatService(s.cfg, convRepo, aborts, search)

		defaultModelName := s.cfg.Chat.DefaultModel
		if defaultModelName == "" && len(s.cfg.Models) > 0 {
			defaultModelName = s.cfg.Models[0].Name
		}

		convHdl := handler.NewConversationHandler(convRepo, chatSvc, limiter, defaultModelName, s.cfg.Chat.DefaultTitle)

		v1.POST("/conversations", convHdl.Create)
		v1.GET("/conversations", convHdl.List)
		v1.GET("/conversations/:id", convHdl.Get)
		v1.POST("/conversations/:id", convHdl.Generate)
		v1.POST("/conversations/:id/stop", convHdl.Stop)
		v1.PATCH("/conversations/:id", convHdl.Rename)
		v1.DELETE("/conversations/:id", convHdl.Delete)
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 关闭连接
		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
