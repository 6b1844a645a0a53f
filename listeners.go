package main

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/sauropod/sauropod/internal/cache"
	"github.com/sauropod/sauropod/internal/catalog"
	"github.com/sauropod/sauropod/internal/events"
)

// registerListeners 装配事件总线上的副作用：
//   - podcast:sync  → 预热最新一集的音频缓存
//   - podcast:add   → 预热封面缓存
//   - podcast:delete → 清理封面缓存并级联删除单集
//   - episode:delete → 清理音频缓存与播放进度
//
// 处理器都是尽力而为：失败只记录日志，总线会吞掉 panic。
func registerListeners(bus *events.Bus, cat *catalog.Catalog, mediaCache *cache.Cache, logger *logrus.Logger) {
	bus.Subscribe(events.PodcastSync, func(payload any) {
		podcastID, ok := payload.(string)
		if !ok {
			return
		}
		episode, err := cat.LatestEpisode(podcastID)
		if err != nil {
			if !errors.Is(err, catalog.ErrNotFound) {
				logger.WithError(err).Warn("latest episode lookup failed")
			}
			return
		}
		prefetch(mediaCache, logger, episode.URL, cache.MediaAudio)
	})

	bus.Subscribe(events.PodcastAdd, func(payload any) {
		podcast, ok := payload.(catalog.Podcast)
		if !ok {
			return
		}
		prefetch(mediaCache, logger, podcast.Image, cache.MediaImage)
	})

	bus.Subscribe(events.PodcastDelete, func(payload any) {
		podcast, ok := payload.(catalog.Podcast)
		if !ok {
			return
		}
		mediaCache.Purge(podcast.Image)
		episodes, err := cat.Episodes(podcast.ID)
		if err != nil {
			logger.WithError(err).Warn("cascade episode listing failed")
			return
		}
		for _, episode := range episodes {
			if err := cat.DeleteEpisode(podcast.ID, episode.ID); err != nil {
				logger.WithError(err).Warn("cascade episode delete failed")
			}
		}
	})

	bus.Subscribe(events.EpisodeDelete, func(payload any) {
		episode, ok := payload.(catalog.Episode)
		if !ok {
			return
		}
		mediaCache.Purge(episode.URL)
		err := cat.DeleteBookmark(episode.PodcastID, episode.ID)
		if err != nil && !errors.Is(err, catalog.ErrNotFound) {
			logger.WithError(err).Warn("bookmark cleanup failed")
		}
	})
}

// prefetch 发起一次后台 fetch-through，只为灌热缓存，结果丢弃。
func prefetch(mediaCache *cache.Cache, logger *logrus.Logger, url string, media cache.MediaClass) {
	if url == "" {
		return
	}
	result, err := mediaCache.Fetch(context.Background(), url, cache.Options{Media: media})
	if err != nil {
		if !errors.Is(err, cache.ErrClosed) {
			logger.WithError(err).WithField("url", url).Debug("prefetch failed")
		}
		return
	}
	if result.Status != 200 {
		logger.WithFields(logrus.Fields{
			"url":    url,
			"status": result.Status,
		}).Debug("prefetch skipped")
	}
}
