package fetchqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Task 是单个排队任务的句柄。所有等待同一任务的调用方共享
// 同一个 Task，结果在任务结束后不可变。
type Task[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Done 在任务结束（成功或失败）后关闭。
func (t *Task[V]) Done() <-chan struct{} {
	return t.done
}

// Wait 阻塞直到任务结束或 ctx 取消。ctx 取消只影响等待方，不会中止任务本身。
func (t *Task[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Result 返回已结束任务的结果；在 Done 关闭之前调用是未定义行为。
func (t *Task[V]) Result() (V, error) {
	return t.value, t.err
}

type pendingItem[K comparable, V any] struct {
	key      K
	producer func() (V, error)
	task     *Task[V]
}

// Queue 以固定并发度执行任务，未派发的任务可以整体重排序。
// 已在运行的任务不受 Sort 影响；任一任务失败不影响其余任务。
type Queue[K comparable, V any] struct {
	mu          sync.Mutex
	concurrency int
	running     int
	pending     []*pendingItem[K, V]
	tasks       map[K]*Task[V]
	idle        sync.WaitGroup
}

// New 创建并发度为 concurrency 的队列（最小为 1）。
func New[K comparable, V any](concurrency int) *Queue[K, V] {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Queue[K, V]{
		concurrency: concurrency,
		tasks:       make(map[K]*Task[V]),
	}
}

// Append 入队任务并在有空闲槽位时立即派发。对已排队/执行中的 key
// 重复入队会返回同一个 Task，不会再次执行 producer。
func (q *Queue[K, V]) Append(key K, producer func() (V, error)) *Task[V] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task, ok := q.tasks[key]; ok {
		return task
	}

	task := &Task[V]{done: make(chan struct{})}
	q.tasks[key] = task
	q.idle.Add(1)
	q.pending = append(q.pending, &pendingItem[K, V]{
		key:      key,
		producer: producer,
		task:     task,
	})
	q.dispatchLocked()
	return task
}

// Get 返回 key 对应的未结束任务；不存在时返回 nil。
func (q *Queue[K, V]) Get(key K) *Task[V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks[key]
}

// Sort 按 less 重排尚未派发的任务，复杂度 O(n log n)。
func (q *Queue[K, V]) Sort(less func(a, b K) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sort.SliceStable(q.pending, func(i, j int) bool {
		return less(q.pending[i].key, q.pending[j].key)
	})
}

// Pending 返回尚未派发的任务数，用于观测与测试。
func (q *Queue[K, V]) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Wait 阻塞直到所有已入队任务结束。
func (q *Queue[K, V]) Wait() {
	q.idle.Wait()
}

func (q *Queue[K, V]) dispatchLocked() {
	for q.running < q.concurrency && len(q.pending) > 0 {
		item := q.pending[0]
		q.pending = q.pending[1:]
		q.running++
		go q.run(item)
	}
}

func (q *Queue[K, V]) run(item *pendingItem[K, V]) {
	value, err := invoke(item.producer)
	item.task.value = value
	item.task.err = err
	close(item.task.done)

	q.mu.Lock()
	q.running--
	delete(q.tasks, item.key)
	q.dispatchLocked()
	q.mu.Unlock()
	q.idle.Done()
}

// invoke 捕获 producer panic，折叠为普通错误，避免拖垮整个队列。
func invoke[V any](producer func() (V, error)) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return producer()
}
