package syncer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/sauropod/sauropod/internal/catalog"
	"github.com/sauropod/sauropod/internal/feed"
	"github.com/sauropod/sauropod/internal/logging"
)

// SyncFeed 同步单个订阅源的元数据。对同一 URL 的并发调用共享同一次
// 解析，因此 ctx 只约束调用方的等待，不会中止解析本身；流式解析在
// 拿到标题与最新日期后立即停止，不读完整个文档。
func (s *Syncer) SyncFeed(ctx context.Context, url string) (*catalog.Podcast, error) {
	task := s.feedQueue.Append(url, func() (*catalog.Podcast, error) {
		return s.syncFeed(url)
	})
	return task.Wait(ctx)
}

func (s *Syncer) syncFeed(url string) (*catalog.Podcast, error) {
	podcast, err := s.catalog.PodcastByURL(url)
	if errors.Is(err, catalog.ErrNotFound) {
		podcast = &catalog.Podcast{ID: catalog.NewID(), URL: url}
	} else if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	resp, err := s.fetchFeed(reqCtx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	meta, err := readFeedMeta(resp.Body)
	if err != nil {
		return nil, err
	}
	if meta.title == "" {
		return nil, ErrMissingTitle
	}
	if meta.modified.IsZero() {
		return nil, ErrMissingDate
	}
	if meta.image == "" {
		meta.image = s.placeholder
	}

	// 订阅源是元数据的权威来源，标题与日期按解析结果直写；
	// 只有剧集对账的聚合更新保持单调前移。
	podcast.Title = meta.title
	podcast.Image = meta.image
	podcast.Modified = meta.modified
	if err := s.catalog.SetPodcast(podcast); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.WithFields(logging.SyncFields(podcast.Title, url)).Debug("feed synced")
	}
	return podcast, nil
}

// feedMeta 是订阅源头部信息的流式提取结果。
type feedMeta struct {
	title    string
	modified time.Time
	image    string
}

// readFeedMeta 按节点流提取标题、最新日期与封面。日期的取值次序：
// 最近一集的 pubDate 优先，频道 pubDate 次之，lastBuildDate 垫底。
// 封面以 itunes:image 为准，channel/image/url 仅作缺省。标题与单集
// 日期都拿到后立即返回，解析到此为止。
func readFeedMeta(r io.Reader) (feedMeta, error) {
	var meta feedMeta
	var fallback time.Time

	parser := feed.NewParser(r)
	for {
		node, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return feedMeta{}, fmt.Errorf("parse feed: %w", err)
		}

		switch {
		case node.Is("channel", "title"):
			if meta.title == "" {
				meta.title = cleanText(node.InnerText())
			}
		case node.Is("channel", "item", "pubDate"):
			if date, ok := parseDate(node.InnerText()); ok {
				meta.modified = date
			}
		case node.Is("channel", "pubDate"):
			if date, ok := parseDate(node.InnerText()); ok {
				fallback = date
			}
		case node.Is("channel", "lastBuildDate"):
			if fallback.IsZero() {
				if date, ok := parseDate(node.InnerText()); ok {
					fallback = date
				}
			}
		case node.Is("channel", "image", "url"):
			if meta.image == "" {
				meta.image = cleanText(node.InnerText())
			}
		case node.Is("channel", "itunes:image"):
			if href := node.Attr("href"); href != "" {
				meta.image = href
			}
		}

		if meta.title != "" && !meta.modified.IsZero() {
			break
		}
	}

	if meta.modified.IsZero() {
		meta.modified = fallback
	}
	return meta, nil
}

// 真实订阅源的日期格式五花八门，按常见程度依次尝试。
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if date, err := time.Parse(layout, raw); err == nil {
			return date, true
		}
	}
	return time.Time{}, false
}

func cleanText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(raw))
}
