package catalog

import "time"

// Podcast 表示一个订阅源及其聚合状态。
// 订阅源同步直写 Modified，剧集对账的聚合更新只会将其前移；
// LatestID 指向最近一集。
type Podcast struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Image    string    `json:"image"`
	Modified time.Time `json:"modified"`
	Count    int       `json:"count"`
	LatestID string    `json:"latestId,omitempty"`
}

// Episode 表示订阅源中的单集。URL 已剥离查询串以稳定身份；
// GUID 以哈希形式存储，便于跨源比较。
type Episode struct {
	ID        string    `json:"id"`
	PodcastID string    `json:"podcastId"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
	Duration  int       `json:"duration"`
	Mimetype  string    `json:"mimetype"`
	GUID      string    `json:"guid,omitempty"`
	Played    bool      `json:"played,omitempty"`
}

// Bookmark 记录单集的播放进度（秒）。
type Bookmark struct {
	PodcastID string    `json:"podcastId"`
	EpisodeID string    `json:"episodeId"`
	Position  float64   `json:"position"`
	Date      time.Time `json:"date"`
}
