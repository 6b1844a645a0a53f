package cache

import (
	"errors"
	"strconv"
	"time"

	"github.com/sauropod/sauropod/internal/store"
)

// metaStore 把缓存元数据（content-type、max-age）落在 catalog 的持久层，
// 键形如 cache:<key>:content-type。文件与元数据二者缺一即视为 miss。
type metaStore struct {
	kv *store.Store
}

func metaKey(key, field string) string {
	return "cache:" + key + ":" + field
}

func (m *metaStore) contentType(key string) (string, bool) {
	entry, err := m.kv.Get(metaKey(key, "content-type"))
	if err != nil {
		return "", false
	}
	return string(entry.Value), true
}

func (m *metaStore) maxAge(key string) (time.Duration, bool) {
	entry, err := m.kv.Get(metaKey(key, "max-age"))
	if err != nil {
		return 0, false
	}
	millis, err := strconv.ParseInt(string(entry.Value), 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(millis) * time.Millisecond, true
}

// set 记录一次成功下载的元数据。同一 key 的写方经过 in-flight 去重，
// 与 purge 竞争产生的版本冲突原样上抛，由调用方按抓取失败处理。
func (m *metaStore) set(key, contentType string, maxAge time.Duration) error {
	if err := m.setField(key, "content-type", contentType); err != nil {
		return err
	}
	millis := strconv.FormatInt(maxAge.Milliseconds(), 10)
	return m.setField(key, "max-age", millis)
}

func (m *metaStore) setField(key, field, value string) error {
	k := metaKey(key, field)
	existing, err := m.kv.Get(k)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err = m.kv.Set(k, []byte(value), existing.Version)
	return err
}

// purge 删除 key 的全部元数据记录，幂等。
func (m *metaStore) purge(key string) {
	entries, err := m.kv.ListByPrefix("cache:" + key + ":")
	if err != nil {
		return
	}
	for _, entry := range entries {
		m.kv.Delete(entry.Key, 0)
	}
}
