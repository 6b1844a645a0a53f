package cache

import (
	"encoding/hex"
	"hash/fnv"
)

// Key 将任意远端 URL 映射为定长缓存键（FNV-32a 十六进制）。
// 纯函数：只依赖 URL 字符串本身，与内容无关。
func Key(url string) string {
	h := fnv.New32a()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}
