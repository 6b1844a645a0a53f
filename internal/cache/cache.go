package cache

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sauropod/sauropod/internal/fetchqueue"
	"github.com/sauropod/sauropod/internal/logging"
	"github.com/sauropod/sauropod/internal/store"
)

// ErrClosed 表示缓存已进入关停流程，不再接受新请求。
var ErrClosed = errors.New("cache closed")

// fallbackContentType 在响应头与 URL 扩展名都无法判定时兜底。
const fallbackContentType = "audio/mpeg"

// Result 是 Fetch 的响应形态结果：调用方永远拿到一个可转发的状态，
// Path 仅在 Status 200 时有效，由 HTTP 层交给文件服务完成 range/条件语义。
type Result struct {
	Status      int
	Key         string
	Path        string
	ContentType string
	Hit         bool
}

type item struct {
	key    string
	url    string
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	task   *fetchqueue.Task[*Result]
}

// Cache 组合磁盘存储、元数据与抓取队列，对外暴露 fetch-through 入口。
// URL 去重只发生在 inflight 表；队列以 item 身份为键，确保条目结清后
// 同一 URL 的下一次注册拿到的是全新任务，而不是残留的旧结果。
type Cache struct {
	disk    *diskStore
	meta    *metaStore
	client  *http.Client
	logger  *logrus.Logger
	queue   *fetchqueue.Queue[*item, *Result]
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight map[string]*item
}

// New 构造缓存。root 为缓存根目录，kv 承载元数据，timeout 是单次网络
// 抓取的硬性上限（独立于调用方取消）。
func New(root string, kv *store.Store, client *http.Client, logger *logrus.Logger, concurrency int, timeout time.Duration) (*Cache, error) {
	disk, err := newDiskStore(root)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Cache{
		disk:     disk,
		meta:     &metaStore{kv: kv},
		client:   client,
		logger:   logger,
		queue:    fetchqueue.New[*item, *Result](concurrency),
		timeout:  timeout,
		inflight: make(map[string]*item),
	}, nil
}

// Fetch 从缓存或网络获取资源。对同一 URL 的并发调用共享同一次抓取，
// 这是本子系统的核心正确性不变量。ctx 只约束调用方的等待，不会中止
// 已被其他调用方共享的抓取；Close 才会取消在途任务。
func (c *Cache) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	key := Key(rawURL)
	opts = opts.resolve()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	// “查在途 + 注册新项”在同一临界区内完成，避免并发重复抓取。
	if existing, ok := c.inflight[key]; ok {
		task := existing.task
		c.mu.Unlock()
		return task.Wait(ctx)
	}
	fetchCtx, cancel := context.WithCancel(context.Background())
	it := &item{key: key, url: rawURL, opts: opts, ctx: fetchCtx, cancel: cancel}
	c.inflight[key] = it
	it.task = c.queue.Append(it, func() (*Result, error) {
		return c.produce(it), nil
	})
	task := it.task
	c.mu.Unlock()

	c.sortQueue()
	return task.Wait(ctx)
}

// Abort 取消指定 URL 的在途抓取；对已结束的抓取是幂等空操作。
func (c *Cache) Abort(rawURL string) {
	key := Key(rawURL)
	c.mu.Lock()
	it, ok := c.inflight[key]
	c.mu.Unlock()
	if ok {
		it.cancel()
	}
}

// sortQueue 按媒体类别优先级重排尚未派发的抓取任务。
// 比较器直接读各 item 的媒体类别，不依赖任何共享状态。
func (c *Cache) sortQueue() {
	c.queue.Sort(func(a, b *item) bool {
		return priority(a.opts.Media) < priority(b.opts.Media)
	})
}

// produce 执行一次抓取的完整流水线；无论成败都把结果折叠为 Result，
// 结束后将自身移出在途表，后续同 key 调用重新走完整判定。
func (c *Cache) produce(it *item) *Result {
	defer func() {
		it.cancel()
		c.mu.Lock()
		delete(c.inflight, it.key)
		c.mu.Unlock()
		c.debug("fetch resolved", it)
	}()

	// 磁盘命中：文件与元数据必须同时存在，缺一按 miss 处理。
	if info, err := c.disk.stat(it.key); err == nil {
		contentType, hasMeta := c.meta.contentType(it.key)
		age := time.Since(info.ModTime())
		if hasMeta && age < it.opts.MaxAge {
			c.debug("fetch from cache", it)
			return &Result{
				Status:      http.StatusOK,
				Key:         it.key,
				Path:        c.disk.path(it.key),
				ContentType: contentType,
				Hit:         true,
			}
		}
		// 过期或孤儿文件先删除，避免后续步骤失败造成歧义。
		c.disk.remove(it.key)
	}

	c.debug("fetch from network", it)

	reqCtx, cancelTimer := context.WithTimeout(it.ctx, c.timeout)
	defer cancelTimer()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, it.url, nil)
	if err != nil {
		return &Result{Status: http.StatusInternalServerError, Key: it.key}
	}
	if accept := acceptHeader(it.opts.Media); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.failure(it, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || resp.ContentLength == 0 {
		// “客户端成功但空响应”归一化为可解决的 miss，而不是服务端错误。
		status := resp.StatusCode
		if status < 400 {
			status = http.StatusNotFound
		}
		return &Result{Status: status, Key: it.key}
	}

	written, err := c.disk.write(reqCtx, it.key, resp.Body)
	if err != nil {
		c.purgeQuiet(it.key)
		return c.failure(it, reqCtx, err)
	}
	if written == 0 {
		c.purgeQuiet(it.key)
		return &Result{Status: http.StatusNotFound, Key: it.key}
	}

	contentType := negotiateContentType(resp.Header.Get("Content-Type"), it.url)
	if err := c.meta.set(it.key, contentType, it.opts.MaxAge); err != nil {
		c.purgeQuiet(it.key)
		return &Result{Status: http.StatusInternalServerError, Key: it.key}
	}

	return &Result{
		Status:      http.StatusOK,
		Key:         it.key,
		Path:        c.disk.path(it.key),
		ContentType: contentType,
	}
}

// failure 区分取消/超时与普通网络错误，取消一律清理半成品文件。
func (c *Cache) failure(it *item, reqCtx context.Context, err error) *Result {
	c.purgeQuiet(it.key)
	if it.ctx.Err() != nil || reqCtx.Err() != nil {
		return &Result{Status: http.StatusGatewayTimeout, Key: it.key}
	}
	if c.logger != nil {
		c.logger.WithFields(logging.FetchFields(it.url, it.key, string(it.opts.Media), false)).
			WithError(err).Error("fetch_failed")
	}
	return &Result{Status: http.StatusInternalServerError, Key: it.key}
}

// Purge 删除元数据与文件；二者任一缺失都不算错误。
// 参数既可以是原始 URL 也可以是缓存键。
func (c *Cache) Purge(urlOrKey string) {
	key := urlOrKey
	if strings.Contains(urlOrKey, "://") {
		key = Key(urlOrKey)
	}
	c.meta.purge(key)
	c.disk.remove(key)
	if c.logger != nil {
		c.logger.WithField("key", key).Debug("purged cache")
	}
}

func (c *Cache) purgeQuiet(key string) {
	c.meta.purge(key)
	c.disk.remove(key)
}

// Clean 扫描缓存根目录一层深度，清理过期与无元数据的孤儿条目。
// purge 幂等，因此不要求可重入安全。
func (c *Cache) Clean() error {
	names, err := c.disk.entries()
	if err != nil {
		return err
	}
	for _, name := range names {
		info, err := c.disk.stat(name)
		if err != nil {
			continue
		}
		maxAge, ok := c.meta.maxAge(name)
		if !ok || time.Since(info.ModTime()) >= maxAge {
			c.Purge(name)
		}
	}
	return nil
}

// Close 中止全部在途抓取并清理其（可能不完整的）磁盘条目，
// 保证重启后不会遗留零字节或截断文件。
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	items := make([]*item, 0, len(c.inflight))
	for _, it := range c.inflight {
		items = append(items, it)
	}
	c.mu.Unlock()

	for _, it := range items {
		if c.logger != nil {
			c.logger.WithField("url", it.url).Warn("fetch abort")
		}
		it.cancel()
	}
	c.queue.Wait()
	for _, it := range items {
		c.purgeQuiet(it.key)
	}
}

func (c *Cache) debug(msg string, it *item) {
	if c.logger != nil {
		c.logger.WithFields(logging.FetchFields(it.url, it.key, string(it.opts.Media), false)).Debug(msg)
	}
}

// negotiateContentType 依次尝试响应头、URL 扩展名，最后回退默认值。
func negotiateContentType(header, rawURL string) string {
	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil && mediaType != "" {
			return mediaType
		}
	}
	if parsed, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(parsed.Path); ext != "" {
			if byExt := mime.TypeByExtension(ext); byExt != "" {
				return byExt
			}
		}
	}
	return fallbackContentType
}
