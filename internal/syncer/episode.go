package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sauropod/sauropod/internal/cache"
	"github.com/sauropod/sauropod/internal/catalog"
	"github.com/sauropod/sauropod/internal/events"
	"github.com/sauropod/sauropod/internal/feed"
	"github.com/sauropod/sauropod/internal/logging"
)

// SyncEpisodes 对账单个订阅源的全部单集：解析订阅源、按 GUID 与
// (标题, 地址) 匹配已有记录、写入差异、删除消失的单集，并刷新订阅源
// 的聚合字段。对同一订阅源的并发调用共享同一次对账；ctx 只约束
// 调用方的等待，解析本身由超时上限兜底。
func (s *Syncer) SyncEpisodes(ctx context.Context, p *catalog.Podcast) error {
	task := s.episodeQueue.Append(p.ID, func() (struct{}, error) {
		return struct{}{}, s.syncEpisodes(p.ID, p.URL)
	})
	_, err := task.Wait(ctx)
	return err
}

func (s *Syncer) syncEpisodes(podcastID, feedURL string) error {
	reqCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	resp, err := s.fetchFeed(reqCtx, feedURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	drafts, err := readDrafts(resp.Body, podcastID)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		// 空订阅源更可能是上游故障而非真的清空了节目，
		// 保守起见不执行删除。
		s.warn("feed produced no episodes, skipping reconcile", feedURL, nil)
		return nil
	}

	existing, err := s.catalog.Episodes(podcastID)
	if err != nil {
		return err
	}

	touched := make(map[string]bool, len(existing))
	for _, draft := range drafts {
		match := matchEpisode(existing, touched, draft)
		if match == nil {
			if err := s.catalog.SetEpisode(draft); err != nil {
				s.warn("episode add failed", draft.URL, err)
			}
			continue
		}
		touched[match.ID] = true
		// 采用已有身份，保留本地的已播状态。
		draft.ID = match.ID
		draft.Played = match.Played
		if episodeChanged(match, draft) {
			if err := s.catalog.SetEpisode(draft); err != nil {
				s.warn("episode update failed", draft.URL, err)
			}
		}
	}

	for i := range existing {
		if !touched[existing[i].ID] {
			if err := s.catalog.DeleteEpisode(podcastID, existing[i].ID); err != nil {
				s.warn("episode delete failed", existing[i].URL, err)
			}
		}
	}

	if err := s.updateAggregates(podcastID, drafts); err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Publish(events.PodcastSync, podcastID)
	}
	if s.logger != nil {
		s.logger.WithFields(logging.SyncFields(podcastID, feedURL)).
			WithField("episodes", len(drafts)).Info("episodes synced")
	}
	return nil
}

// updateAggregates 基于本轮的全量单集刷新订阅源的计数、最新一集
// 与更新时间。更新时间只前移；没有实际变化时不落盘，保证对账幂等。
func (s *Syncer) updateAggregates(podcastID string, drafts []*catalog.Episode) error {
	podcast, err := s.catalog.Podcast(podcastID)
	if err != nil {
		return err
	}
	latest := drafts[len(drafts)-1]
	modified := podcast.Modified
	if latest.Date.After(modified) {
		modified = latest.Date
	}
	if podcast.Count == len(drafts) && podcast.LatestID == latest.ID && podcast.Modified.Equal(modified) {
		return nil
	}
	podcast.Count = len(drafts)
	podcast.LatestID = latest.ID
	podcast.Modified = modified
	return s.catalog.SetPodcast(podcast)
}

// matchEpisode 依次用 GUID、(标题, 地址) 在未匹配的已有单集中找同一集。
func matchEpisode(existing []catalog.Episode, touched map[string]bool, draft *catalog.Episode) *catalog.Episode {
	if draft.GUID != "" {
		for i := range existing {
			if !touched[existing[i].ID] && existing[i].GUID == draft.GUID {
				return &existing[i]
			}
		}
	}
	for i := range existing {
		if touched[existing[i].ID] {
			continue
		}
		if existing[i].Title == draft.Title && existing[i].URL == draft.URL {
			return &existing[i]
		}
	}
	return nil
}

func episodeChanged(prev, next *catalog.Episode) bool {
	return prev.URL != next.URL ||
		prev.Title != next.Title ||
		!prev.Date.Equal(next.Date) ||
		prev.Duration != next.Duration ||
		prev.Mimetype != next.Mimetype ||
		prev.GUID != next.GUID
}

// readDrafts 解析订阅源全文，将每个带附件的 item 转为候选单集，
// 按日期升序返回。没有附件或日期无法解析的条目直接跳过。
func readDrafts(r io.Reader, podcastID string) ([]*catalog.Episode, error) {
	var drafts []*catalog.Episode

	parser := feed.NewParser(r)
	for {
		node, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse feed: %w", err)
		}
		if !node.Is("channel", "item") {
			continue
		}
		if draft := draftFromItem(node, podcastID); draft != nil {
			drafts = append(drafts, draft)
		}
	}

	// 升序排序让“最后一个”恒为最新一集，聚合更新据此取值。
	for i := 1; i < len(drafts); i++ {
		for j := i; j > 0 && drafts[j].Date.Before(drafts[j-1].Date); j-- {
			drafts[j], drafts[j-1] = drafts[j-1], drafts[j]
		}
	}
	return drafts, nil
}

func draftFromItem(item *feed.Node, podcastID string) *catalog.Episode {
	enclosure := item.First("enclosure")
	if enclosure == nil || enclosure.Attr("url") == "" {
		return nil
	}

	// 附件是唯一的硬性要求。日期缺失或无法解析时退化为当前时间，
	// 标题缺失留空：丢弃草稿会让对账误删对应的本地单集。
	date := time.Now()
	if pubDate := item.First("pubDate"); pubDate != nil {
		if parsed, ok := parseDate(pubDate.InnerText()); ok {
			date = parsed
		}
	}

	draft := &catalog.Episode{
		ID:        catalog.NewID(),
		PodcastID: podcastID,
		URL:       stripQuery(enclosure.Attr("url")),
		Date:      date,
		Mimetype:  enclosure.Attr("type"),
	}
	if title := item.First("title"); title != nil {
		draft.Title = cleanText(title.InnerText())
	}
	if draft.Mimetype == "" {
		draft.Mimetype = "audio/mpeg"
	}
	if duration := item.First("itunes:duration"); duration != nil {
		draft.Duration = parseDuration(duration.InnerText())
	}
	if guid := item.First("guid"); guid != nil {
		if raw := stripCDATA(cleanText(guid.InnerText())); raw != "" {
			// GUID 存哈希：上游的 GUID 可能是任意长文本。
			draft.GUID = cache.Key(raw)
		}
	}
	return draft
}

// parseDuration 解析 [HH:]MM:SS 或纯秒数；解析失败按 0 处理。
func parseDuration(raw string) int {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	total := 0
	for i := 0; i < len(parts); i++ {
		part := parts[len(parts)-1-i]
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0
		}
		scale := 1
		for j := 0; j < i; j++ {
			scale *= 60
		}
		total += n * scale
	}
	return total
}

// stripQuery 去掉附件地址的查询串，避免跟踪参数扰动单集身份。
func stripQuery(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		if idx := strings.IndexByte(raw, '?'); idx >= 0 {
			return raw[:idx]
		}
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

func stripCDATA(raw string) string {
	raw = strings.TrimPrefix(raw, "<![CDATA[")
	return strings.TrimSuffix(raw, "]]>")
}
