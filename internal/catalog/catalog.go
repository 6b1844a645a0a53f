package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sauropod/sauropod/internal/events"
	"github.com/sauropod/sauropod/internal/store"
)

// ErrNotFound 表示实体不存在；ErrConflict 表示乐观并发校验失败。
var (
	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// NewID 生成新的实体标识符。
func NewID() string {
	return uuid.NewString()
}

// Catalog 管理 Podcast/Episode/Bookmark 的持久化，写路径通过
// 乐观并发校验防止并发覆盖，变更通过事件总线向外广播。
type Catalog struct {
	store  *store.Store
	bus    *events.Bus
	logger *logrus.Logger
}

// New 构造 Catalog。bus 可以为 nil（测试场景），此时不发布事件。
func New(s *store.Store, bus *events.Bus, logger *logrus.Logger) *Catalog {
	return &Catalog{store: s, bus: bus, logger: logger}
}

func podcastKey(id string) string {
	return "podcast:" + id
}

func episodeKey(podcastID, id string) string {
	return fmt.Sprintf("episode:%s:%s", podcastID, id)
}

func bookmarkKey(podcastID, episodeID string) string {
	return fmt.Sprintf("bookmark:%s:%s", podcastID, episodeID)
}

func (c *Catalog) publish(event events.Event, payload any) {
	if c.bus != nil {
		c.bus.Publish(event, payload)
	}
}

// Podcasts 返回全部订阅源，按更新时间倒序。
func (c *Catalog) Podcasts() ([]Podcast, error) {
	entries, err := c.store.ListByPrefix("podcast:")
	if err != nil {
		return nil, err
	}
	podcasts := make([]Podcast, 0, len(entries))
	for _, entry := range entries {
		var p Podcast
		if err := json.Unmarshal(entry.Value, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Key, err)
		}
		podcasts = append(podcasts, p)
	}
	sort.Slice(podcasts, func(i, j int) bool {
		return podcasts[i].Modified.After(podcasts[j].Modified)
	})
	return podcasts, nil
}

// Podcast 按 ID 返回订阅源。
func (c *Catalog) Podcast(id string) (*Podcast, error) {
	if !IsUUID(id) {
		return nil, fmt.Errorf("%w: podcast id %q", ErrInvalid, id)
	}
	entry, err := c.store.Get(podcastKey(id))
	if err != nil {
		return nil, err
	}
	var p Podcast
	if err := json.Unmarshal(entry.Value, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PodcastByURL 按源地址查找订阅源；未找到返回 ErrNotFound。
func (c *Catalog) PodcastByURL(url string) (*Podcast, error) {
	if !IsURL(url) {
		return nil, fmt.Errorf("%w: url %q", ErrInvalid, url)
	}
	podcasts, err := c.Podcasts()
	if err != nil {
		return nil, err
	}
	for i := range podcasts {
		if podcasts[i].URL == url {
			return &podcasts[i], nil
		}
	}
	return nil, ErrNotFound
}

// SetPodcast 新增或更新订阅源，并发布 podcast:add / podcast:update 事件。
func (c *Catalog) SetPodcast(p *Podcast) error {
	if err := validatePodcast(p); err != nil {
		return err
	}
	value, err := json.Marshal(p)
	if err != nil {
		return err
	}

	key := podcastKey(p.ID)
	existing, err := c.store.Get(key)
	isNew := errors.Is(err, store.ErrNotFound)
	if err != nil && !isNew {
		return err
	}

	if _, err := c.store.Set(key, value, existing.Version); err != nil {
		return err
	}

	if isNew {
		c.publish(events.PodcastAdd, *p)
	} else {
		c.publish(events.PodcastUpdate, *p)
	}
	return nil
}

// DeletePodcast 删除订阅源并发布 podcast:delete；级联清理交给事件监听器。
func (c *Catalog) DeletePodcast(id string) error {
	podcast, err := c.Podcast(id)
	if err != nil {
		return err
	}
	if err := c.store.Delete(podcastKey(id), 0); err != nil {
		return err
	}
	c.publish(events.PodcastDelete, *podcast)
	return nil
}

// Episodes 返回订阅源的全部单集。
func (c *Catalog) Episodes(podcastID string) ([]Episode, error) {
	if !IsUUID(podcastID) {
		return nil, fmt.Errorf("%w: podcast id %q", ErrInvalid, podcastID)
	}
	entries, err := c.store.ListByPrefix("episode:" + podcastID + ":")
	if err != nil {
		return nil, err
	}
	episodes := make([]Episode, 0, len(entries))
	for _, entry := range entries {
		var e Episode
		if err := json.Unmarshal(entry.Value, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Key, err)
		}
		episodes = append(episodes, e)
	}
	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].Date.After(episodes[j].Date)
	})
	return episodes, nil
}

// EpisodesByPage 返回按日期倒序分页的单集，page 从 0 开始。
func (c *Catalog) EpisodesByPage(podcastID string, limit, page int) ([]Episode, error) {
	episodes, err := c.Episodes(podcastID)
	if err != nil {
		return nil, err
	}
	start := page * limit
	if start >= len(episodes) {
		return []Episode{}, nil
	}
	end := start + limit
	if end > len(episodes) {
		end = len(episodes)
	}
	return episodes[start:end], nil
}

// Episode 按 (podcastID, id) 返回单集。
func (c *Catalog) Episode(podcastID, id string) (*Episode, error) {
	if !IsUUID(podcastID) || !IsUUID(id) {
		return nil, fmt.Errorf("%w: episode ids", ErrInvalid)
	}
	entry, err := c.store.Get(episodeKey(podcastID, id))
	if err != nil {
		return nil, err
	}
	var e Episode
	if err := json.Unmarshal(entry.Value, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// LatestEpisode 返回订阅源最近一集；没有任何单集时返回 ErrNotFound。
func (c *Catalog) LatestEpisode(podcastID string) (*Episode, error) {
	podcast, err := c.Podcast(podcastID)
	if err != nil {
		return nil, err
	}
	if podcast.LatestID == "" {
		return nil, ErrNotFound
	}
	return c.Episode(podcastID, podcast.LatestID)
}

// SetEpisode 新增或更新单集，并发布 episode:add / episode:update 事件。
func (c *Catalog) SetEpisode(e *Episode) error {
	if err := validateEpisode(e); err != nil {
		return err
	}
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := episodeKey(e.PodcastID, e.ID)
	existing, err := c.store.Get(key)
	isNew := errors.Is(err, store.ErrNotFound)
	if err != nil && !isNew {
		return err
	}

	if _, err := c.store.Set(key, value, existing.Version); err != nil {
		return err
	}

	if isNew {
		c.publish(events.EpisodeAdd, *e)
	} else {
		c.publish(events.EpisodeUpdate, *e)
	}
	return nil
}

// DeleteEpisode 删除单集并发布 episode:delete。
func (c *Catalog) DeleteEpisode(podcastID, id string) error {
	episode, err := c.Episode(podcastID, id)
	if err != nil {
		return err
	}
	if err := c.store.Delete(episodeKey(podcastID, id), 0); err != nil {
		return err
	}
	c.publish(events.EpisodeDelete, *episode)
	return nil
}

// Bookmarks 返回全部播放进度，按时间倒序。
func (c *Catalog) Bookmarks() ([]Bookmark, error) {
	entries, err := c.store.ListByPrefix("bookmark:")
	if err != nil {
		return nil, err
	}
	bookmarks := make([]Bookmark, 0, len(entries))
	for _, entry := range entries {
		var b Bookmark
		if err := json.Unmarshal(entry.Value, &b); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Key, err)
		}
		bookmarks = append(bookmarks, b)
	}
	sort.Slice(bookmarks, func(i, j int) bool {
		return bookmarks[i].Date.After(bookmarks[j].Date)
	})
	return bookmarks, nil
}

// Bookmark 返回单集的播放进度。
func (c *Catalog) Bookmark(podcastID, episodeID string) (*Bookmark, error) {
	if !IsUUID(podcastID) || !IsUUID(episodeID) {
		return nil, fmt.Errorf("%w: bookmark ids", ErrInvalid)
	}
	entry, err := c.store.Get(bookmarkKey(podcastID, episodeID))
	if err != nil {
		return nil, err
	}
	var b Bookmark
	if err := json.Unmarshal(entry.Value, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SetBookmark 写入播放进度。
func (c *Catalog) SetBookmark(b *Bookmark) error {
	if err := validateBookmark(b); err != nil {
		return err
	}
	value, err := json.Marshal(b)
	if err != nil {
		return err
	}
	key := bookmarkKey(b.PodcastID, b.EpisodeID)
	existing, err := c.store.Get(key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err = c.store.Set(key, value, existing.Version)
	return err
}

// DeleteBookmark 删除播放进度并发布 bookmark:delete。
func (c *Catalog) DeleteBookmark(podcastID, episodeID string) error {
	bookmark, err := c.Bookmark(podcastID, episodeID)
	if err != nil {
		return err
	}
	if err := c.store.Delete(bookmarkKey(podcastID, episodeID), 0); err != nil {
		return err
	}
	c.publish(events.BookmarkDelete, *bookmark)
	return nil
}
