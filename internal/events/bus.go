package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event 是总线上流转的事件名称。
type Event string

// 进程内事件清单。新增/更新/删除事件由 catalog 写路径触发，
// podcast:sync 由同步引擎在 reconciliation 完成后触发。
const (
	PodcastSync    Event = "podcast:sync"
	PodcastAdd     Event = "podcast:add"
	PodcastUpdate  Event = "podcast:update"
	PodcastDelete  Event = "podcast:delete"
	EpisodeAdd     Event = "episode:add"
	EpisodeUpdate  Event = "episode:update"
	EpisodeDelete  Event = "episode:delete"
	BookmarkDelete Event = "bookmark:delete"
)

// Handler 处理单个事件载荷。载荷类型由事件约定，处理器自行断言。
type Handler func(payload any)

// Bus 是显式构造的进程内发布/订阅总线。Publish 不会因处理器失败
// 而阻塞或崩溃：每个处理器在独立 goroutine 中运行，panic 会被捕获并记录。
type Bus struct {
	logger *logrus.Logger

	mu       sync.RWMutex
	handlers map[Event][]Handler
	wg       sync.WaitGroup
}

// NewBus 创建事件总线，监听器在启动阶段注册，归属权在持有者。
func NewBus(logger *logrus.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[Event][]Handler),
	}
}

// Subscribe 注册事件处理器。非并发安全的注册阶段应在启动时完成。
func (b *Bus) Subscribe(event Event, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], handler)
	b.mu.Unlock()
}

// Publish 派发事件。处理器失败只记录日志，绝不传播给发布方。
func (b *Bus) Publish(event Event, payload any) {
	b.mu.RLock()
	handlers := b.handlers[event]
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil && b.logger != nil {
					b.logger.WithFields(logrus.Fields{
						"action": "event_handler_panic",
						"event":  string(event),
					}).Errorf("panic: %v", r)
				}
			}()
			h(payload)
		}(handler)
	}
}

// Wait 阻塞直到所有已派发的处理器完成，用于关停与测试。
func (b *Bus) Wait() {
	b.wg.Wait()
}
