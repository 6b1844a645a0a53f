package cache

import (
	"strings"
	"time"
)

// MediaClass 决定 accept 头、默认 TTL 与队列优先级。
type MediaClass string

const (
	MediaAudio MediaClass = "audio"
	MediaImage MediaClass = "image"
	MediaRSS   MediaClass = "rss"
	MediaJSON  MediaClass = "json"
)

// Options 控制单次 Fetch 的媒体类别与 TTL 覆盖。
type Options struct {
	Media MediaClass
	// MaxAge 为 0 时使用类别默认值。
	MaxAge time.Duration
}

var acceptHeaders = map[MediaClass][]string{
	MediaJSON: {
		"application/json;q=0.9",
		"text/json;q=0.8",
		"text/plain;q=0.7",
	},
	MediaRSS: {
		"application/rss+xml;q=0.9",
		"application/xml;q=0.8",
		"text/xml;q=0.7",
	},
	MediaAudio: {
		"audio/aac;q=1.0",
		"audio/mpeg;q=0.9",
		"audio/*;q=0.8",
	},
	MediaImage: {
		"image/avif;q=1.0",
		"image/webp;q=0.9",
		"image/png;q=0.8",
		"image/jpeg;q=0.7",
		"image/jpg;q=0.7",
	},
}

// acceptHeader 拼接媒体类别的 accept 首部；未知类别返回空串。
func acceptHeader(media MediaClass) string {
	return strings.Join(acceptHeaders[media], ", ")
}

// defaultMaxAge 返回类别默认 TTL：音频 30 天、图片 2 天、其余 1 小时。
func defaultMaxAge(media MediaClass) time.Duration {
	switch media {
	case MediaAudio:
		return 30 * 24 * time.Hour
	case MediaImage:
		return 2 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// priority 返回队列排序值，越小越先派发：feed/json 最快，音频最慢。
func priority(media MediaClass) int {
	switch media {
	case MediaRSS, MediaJSON:
		return 1
	case MediaImage:
		return 2
	case MediaAudio:
		return 4
	default:
		return 3
	}
}

// resolve 补全缺省 TTL，返回规范化后的 Options。
func (o Options) resolve() Options {
	if o.MaxAge <= 0 {
		o.MaxAge = defaultMaxAge(o.Media)
	}
	return o
}
