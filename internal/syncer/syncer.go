package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sauropod/sauropod/internal/catalog"
	"github.com/sauropod/sauropod/internal/events"
	"github.com/sauropod/sauropod/internal/fetchqueue"
)

// 订阅源解析失败的硬错误：标题与日期缺一不可。
var (
	ErrMissingTitle = errors.New("feed missing title")
	ErrMissingDate  = errors.New("feed missing date")
)

// Syncer 将远端订阅源对账到本地 catalog。两个独立队列分别限制
// 元数据同步与单集对账的并发度，与缓存抓取队列互不影响。
type Syncer struct {
	catalog     *catalog.Catalog
	bus         *events.Bus
	logger      *logrus.Logger
	client      *http.Client
	timeout     time.Duration
	placeholder string

	feedQueue    *fetchqueue.Queue[string, *catalog.Podcast]
	episodeQueue *fetchqueue.Queue[string, struct{}]

	syncing atomic.Bool
}

// New 构造 Syncer。timeout 是单次订阅源解析的硬性上限（30 秒级别），
// placeholder 在订阅源缺失封面时使用。
func New(cat *catalog.Catalog, bus *events.Bus, logger *logrus.Logger, client *http.Client, concurrency int, timeout time.Duration, placeholder string) *Syncer {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Syncer{
		catalog:      cat,
		bus:          bus,
		logger:       logger,
		client:       client,
		timeout:      timeout,
		placeholder:  placeholder,
		feedQueue:    fetchqueue.New[string, *catalog.Podcast](concurrency),
		episodeQueue: fetchqueue.New[string, struct{}](concurrency),
	}
}

// SyncAll 先同步全部订阅源元数据，再对账全部单集。尽力而为：
// 单个订阅源失败只记录日志，不影响其余订阅源。重入时直接返回。
func (s *Syncer) SyncAll(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.syncing.Store(false)

	started := time.Now()
	s.info("sync started")

	if err := s.syncAllFeeds(ctx); err != nil {
		return err
	}
	if err := s.syncAllEpisodes(ctx); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.WithField("elapsed", time.Since(started).Round(10*time.Millisecond).String()).
			Info("sync finished")
	}
	return nil
}

func (s *Syncer) syncAllFeeds(ctx context.Context) error {
	podcasts, err := s.catalog.Podcasts()
	if err != nil {
		return fmt.Errorf("list podcasts: %w", err)
	}
	var wg sync.WaitGroup
	for _, p := range podcasts {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if _, err := s.SyncFeed(ctx, url); err != nil {
				s.warn("feed sync failed", url, err)
			}
		}(p.URL)
	}
	wg.Wait()
	return nil
}

func (s *Syncer) syncAllEpisodes(ctx context.Context) error {
	podcasts, err := s.catalog.Podcasts()
	if err != nil {
		return fmt.Errorf("list podcasts: %w", err)
	}
	var wg sync.WaitGroup
	for i := range podcasts {
		wg.Add(1)
		go func(p catalog.Podcast) {
			defer wg.Done()
			if err := s.SyncEpisodes(ctx, &p); err != nil {
				s.warn("episode sync failed", p.URL, err)
			}
		}(podcasts[i])
	}
	wg.Wait()
	return nil
}

func (s *Syncer) info(msg string) {
	if s.logger != nil {
		s.logger.Info(msg)
	}
}

func (s *Syncer) warn(msg, url string, err error) {
	if s.logger == nil {
		return
	}
	entry := s.logger.WithField("url", url)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn(msg)
}

// fetchFeed 发起订阅源请求；非 2xx 一律视为抓取失败。
func (s *Syncer) fetchFeed(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml;q=0.9, application/xml;q=0.8, text/xml;q=0.7")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("feed fetch status %d", resp.StatusCode)
	}
	return resp, nil
}
