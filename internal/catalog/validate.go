package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid 标识本地校验失败；校验在任何写入之前完成，绝不部分落盘。
var ErrInvalid = errors.New("invalid catalog entity")

// IsUUID 校验 v4 UUID 字符串。
func IsUUID(value string) bool {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return false
	}
	return parsed.Version() == 4
}

// IsURL 校验 HTTP(S) URL。
func IsURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	return strings.HasPrefix(parsed.Scheme, "http") && parsed.Host != ""
}

// IsDate 拒绝纪元前日期，对未来排期保留两年宽限。
func IsDate(value time.Time) bool {
	if value.IsZero() || value.Year() < 1970 {
		return false
	}
	return value.Year() <= time.Now().Year()+2
}

func validatePodcast(p *Podcast) error {
	if !IsUUID(p.ID) {
		return fmt.Errorf("%w: podcast id %q", ErrInvalid, p.ID)
	}
	if !IsURL(p.URL) {
		return fmt.Errorf("%w: podcast url %q", ErrInvalid, p.URL)
	}
	return nil
}

func validateEpisode(e *Episode) error {
	if !IsUUID(e.ID) {
		return fmt.Errorf("%w: episode id %q", ErrInvalid, e.ID)
	}
	if !IsUUID(e.PodcastID) {
		return fmt.Errorf("%w: episode podcast id %q", ErrInvalid, e.PodcastID)
	}
	if !IsURL(e.URL) {
		return fmt.Errorf("%w: episode url %q", ErrInvalid, e.URL)
	}
	if !IsDate(e.Date) {
		return fmt.Errorf("%w: episode date %v", ErrInvalid, e.Date)
	}
	if e.Duration < 0 {
		return fmt.Errorf("%w: episode duration %d", ErrInvalid, e.Duration)
	}
	return nil
}

func validateBookmark(b *Bookmark) error {
	if !IsUUID(b.PodcastID) || !IsUUID(b.EpisodeID) {
		return fmt.Errorf("%w: bookmark ids", ErrInvalid)
	}
	if b.Position < 0 {
		return fmt.Errorf("%w: bookmark position %f", ErrInvalid, b.Position)
	}
	return nil
}
