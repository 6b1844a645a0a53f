package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sauropod/sauropod/internal/cache"
	"github.com/sauropod/sauropod/internal/catalog"
)

// MediaCache 是媒体缓存的注入点，测试中可以替换为假实现。
type MediaCache interface {
	Fetch(ctx context.Context, url string, opts cache.Options) (*cache.Result, error)
	Abort(url string)
	Purge(urlOrKey string)
}

// FeedSyncer 是同步引擎的注入点。
type FeedSyncer interface {
	SyncFeed(ctx context.Context, url string) (*catalog.Podcast, error)
	SyncEpisodes(ctx context.Context, p *catalog.Podcast) error
	SyncAll(ctx context.Context) error
}

// AppOptions 控制 Fiber 应用的依赖装配。
type AppOptions struct {
	Logger  *logrus.Logger
	Catalog *catalog.Catalog
	Cache   MediaCache
	Syncer  FeedSyncer
}

const contextKeyRequestID = "_sauropod_request_id"

// NewApp 构建 Fiber 应用：请求 ID 中间件 + panic 恢复 + REST 路由。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("media cache is required")
	}
	if opts.Syncer == nil {
		return nil, errors.New("syncer is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	h := &handlers{opts: opts}
	h.register(app)

	return app, nil
}

// requestIDMiddleware 为每个请求生成标识符并回写响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID 返回中间件写入的请求标识符。
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// requestContext 提取请求上下文；fasthttp 在极端场景下可能给出 nil。
func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// renderError 将存储层错误折叠为统一的 JSON 错误响应。
func renderError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	case errors.Is(err, catalog.ErrInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	case errors.Is(err, catalog.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal"})
	}
}
