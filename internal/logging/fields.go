package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 提供缓存请求日志的统一字段。
func FetchFields(url, key, media string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"url":       url,
		"key":       key,
		"media":     media,
		"cache_hit": cacheHit,
	}
}

// SyncFields 提供订阅源同步日志的统一字段。
func SyncFields(podcast, url string) logrus.Fields {
	return logrus.Fields{
		"podcast": podcast,
		"url":     url,
	}
}
