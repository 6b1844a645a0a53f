package server

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/sauropod/sauropod/internal/catalog"
	"github.com/sauropod/sauropod/internal/logging"
)

// handlers 承载全部 REST 处理器，依赖通过 AppOptions 注入。
type handlers struct {
	opts AppOptions
}

func (h *handlers) register(app *fiber.App) {
	api := app.Group("/api")

	api.Get("/podcasts", h.listPodcasts)
	api.Post("/podcasts", h.addPodcast)
	api.Get("/podcasts/:id", h.getPodcast)
	api.Delete("/podcasts/:id", h.deletePodcast)
	api.Get("/podcasts/:id/episodes", h.listEpisodes)

	api.Get("/episodes/:podcastID/:id", h.getEpisode)
	api.Patch("/episodes/:podcastID/:id", h.patchEpisode)

	api.Get("/artwork/:id", h.artwork)
	api.Get("/audio/:podcastID/:id", h.audio)
	api.Delete("/audio/:podcastID/:id", h.abortAudio)

	api.Get("/bookmarks", h.listBookmarks)
	api.Post("/bookmarks", h.setBookmark)
	api.Delete("/bookmarks/:podcastID/:episodeID", h.deleteBookmark)

	api.Post("/sync", h.triggerSync)
}

func (h *handlers) listPodcasts(c fiber.Ctx) error {
	podcasts, err := h.opts.Catalog.Podcasts()
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(podcasts)
}

// addPodcast 订阅新源：先同步元数据，成功后立刻对账单集。
// 对已订阅的 URL 幂等，返回既有订阅源。
func (h *handlers) addPodcast(c fiber.Ctx) error {
	var in struct {
		URL string `json:"url"`
	}
	if err := c.Bind().Body(&in); err != nil || in.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
	}

	ctx := requestContext(c)
	podcast, err := h.opts.Syncer.SyncFeed(ctx, in.URL)
	if err != nil {
		h.opts.Logger.WithFields(logging.SyncFields("", in.URL)).
			WithError(err).Warn("subscribe failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "feed_unreachable"})
	}
	if err := h.opts.Syncer.SyncEpisodes(ctx, podcast); err != nil {
		h.opts.Logger.WithFields(logging.SyncFields(podcast.Title, in.URL)).
			WithError(err).Warn("initial episode sync failed")
	}
	return c.Status(fiber.StatusCreated).JSON(podcast)
}

func (h *handlers) getPodcast(c fiber.Ctx) error {
	podcast, err := h.opts.Catalog.Podcast(c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(podcast)
}

func (h *handlers) deletePodcast(c fiber.Ctx) error {
	if err := h.opts.Catalog.DeletePodcast(c.Params("id")); err != nil {
		return renderError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) listEpisodes(c fiber.Ctx) error {
	limit := queryInt(c, "limit", 0)
	page := queryInt(c, "page", 0)

	if limit > 0 {
		episodes, err := h.opts.Catalog.EpisodesByPage(c.Params("id"), limit, page)
		if err != nil {
			return renderError(c, err)
		}
		return c.JSON(episodes)
	}
	episodes, err := h.opts.Catalog.Episodes(c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(episodes)
}

func (h *handlers) getEpisode(c fiber.Ctx) error {
	episode, err := h.opts.Catalog.Episode(c.Params("podcastID"), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(episode)
}

// patchEpisode 目前只支持切换已播标记。
func (h *handlers) patchEpisode(c fiber.Ctx) error {
	var in struct {
		Played *bool `json:"played"`
	}
	if err := c.Bind().Body(&in); err != nil || in.Played == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "played_required"})
	}

	episode, err := h.opts.Catalog.Episode(c.Params("podcastID"), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	episode.Played = *in.Played
	if err := h.opts.Catalog.SetEpisode(episode); err != nil {
		return renderError(c, err)
	}
	return c.JSON(episode)
}

func (h *handlers) listBookmarks(c fiber.Ctx) error {
	bookmarks, err := h.opts.Catalog.Bookmarks()
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(bookmarks)
}

func (h *handlers) setBookmark(c fiber.Ctx) error {
	var in catalog.Bookmark
	if err := c.Bind().Body(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := h.opts.Catalog.SetBookmark(&in); err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(in)
}

func (h *handlers) deleteBookmark(c fiber.Ctx) error {
	if err := h.opts.Catalog.DeleteBookmark(c.Params("podcastID"), c.Params("episodeID")); err != nil {
		return renderError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// triggerSync 在后台启动全量同步；重复触发由同步引擎自身去重。
func (h *handlers) triggerSync(c fiber.Ctx) error {
	go func() {
		if err := h.opts.Syncer.SyncAll(context.Background()); err != nil {
			h.opts.Logger.WithError(err).Error("manual sync failed")
		}
	}()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}

func queryInt(c fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
