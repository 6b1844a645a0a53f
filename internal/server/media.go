package server

import (
	"github.com/gofiber/fiber/v3"

	"github.com/sauropod/sauropod/internal/cache"
)

// artwork 通过缓存回源订阅源封面。封面走 image 类别：2 天 TTL，
// 队列优先级高于音频。
func (h *handlers) artwork(c fiber.Ctx) error {
	podcast, err := h.opts.Catalog.Podcast(c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return h.serveCached(c, podcast.Image, cache.Options{Media: cache.MediaImage})
}

// audio 通过缓存回源单集音频，支持 range 请求以便拖动进度条。
func (h *handlers) audio(c fiber.Ctx) error {
	episode, err := h.opts.Catalog.Episode(c.Params("podcastID"), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return h.serveCached(c, episode.URL, cache.Options{Media: cache.MediaAudio})
}

// abortAudio 取消在途的音频抓取；对已完成的抓取是空操作。
func (h *handlers) abortAudio(c fiber.Ctx) error {
	episode, err := h.opts.Catalog.Episode(c.Params("podcastID"), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	h.opts.Cache.Abort(episode.URL)
	return c.SendStatus(fiber.StatusNoContent)
}

// serveCached 执行 fetch-through 并把命中的文件交给 Fiber 的文件服务，
// range 与条件请求语义由后者完成。缓存返回的非 200 状态原样转发。
func (h *handlers) serveCached(c fiber.Ctx, url string, opts cache.Options) error {
	result, err := h.opts.Cache.Fetch(requestContext(c), url, opts)
	if err != nil {
		return renderError(c, err)
	}
	if result.Status != fiber.StatusOK {
		return c.SendStatus(result.Status)
	}

	if err := c.SendFile(result.Path, fiber.SendFile{ByteRange: true}); err != nil {
		return renderError(c, err)
	}
	// 缓存文件没有扩展名，文件服务猜不出类型，以元数据为准。
	c.Set(fiber.HeaderContentType, result.ContentType)
	if result.Hit {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}
	return nil
}
