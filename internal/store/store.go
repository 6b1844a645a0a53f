package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrNotFound 表示键不存在。
	ErrNotFound = errors.New("store entry not found")
	// ErrConflict 表示乐观并发校验失败：写入期间条目已被他人修改。
	ErrConflict = errors.New("store entry version conflict")
)

var bucketName = []byte("catalog")

// Entry 是一次读取结果，Version 用于后续写入时的乐观校验。
// 不存在的键以 Version 0 表示，可直接用于首次写入。
type Entry struct {
	Key     string
	Value   []byte
	Version uint64
}

// Store 封装 bbolt 单文件 KV，提供 get/set/delete/list-by-prefix
// 与基于版本号的 compare-and-set 语义。
type Store struct {
	db *bolt.DB
}

// Open 打开（必要时创建）数据库文件。
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("data path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close 关闭底层数据库。
func (s *Store) Close() error {
	return s.db.Close()
}

// Get 返回条目；不存在时返回 ErrNotFound。
func (s *Store) Get(key string) (Entry, error) {
	var entry Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var decodeErr error
		entry, decodeErr = decode(key, raw)
		return decodeErr
	})
	return entry, err
}

// Set 写入条目。expected 是此前读取到的版本号（新键为 0）；
// 若当前版本不一致则返回 ErrConflict，绝不静默覆盖。
func (s *Store) Set(key string, value []byte, expected uint64) (Entry, error) {
	var entry Entry
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		current := uint64(0)
		if raw := bucket.Get([]byte(key)); raw != nil {
			existing, err := decode(key, raw)
			if err != nil {
				return err
			}
			current = existing.Version
		}
		if current != expected {
			return ErrConflict
		}
		entry = Entry{Key: key, Value: value, Version: current + 1}
		return bucket.Put([]byte(key), encode(entry))
	})
	return entry, err
}

// Delete 删除条目。expected 非零时执行版本校验；键不存在返回 ErrNotFound。
func (s *Store) Delete(key string, expected uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		if expected != 0 {
			existing, err := decode(key, raw)
			if err != nil {
				return err
			}
			if existing.Version != expected {
				return ErrConflict
			}
		}
		return bucket.Delete([]byte(key))
	})
}

// ListByPrefix 返回键前缀匹配的全部条目，按键升序。
func (s *Store) ListByPrefix(prefix string) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketName).Cursor()
		p := []byte(prefix)
		for k, v := cursor.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = cursor.Next() {
			entry, err := decode(string(k), v)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// 存储格式：8 字节大端版本号 + 原始 value。
func encode(entry Entry) []byte {
	buf := make([]byte, 8+len(entry.Value))
	binary.BigEndian.PutUint64(buf, entry.Version)
	copy(buf[8:], entry.Value)
	return buf
}

func decode(key string, raw []byte) (Entry, error) {
	if len(raw) < 8 {
		return Entry{}, fmt.Errorf("corrupt entry for key %q", key)
	}
	value := make([]byte, len(raw)-8)
	copy(value, raw[8:])
	return Entry{
		Key:     key,
		Value:   value,
		Version: binary.BigEndian.Uint64(raw),
	}, nil
}
