package models

// Channel is the tutor produced by ingesting a playlist.
type Channel struct {
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

// ProgressKey is the crawler bookmark stored with a history entry.
type ProgressKey struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// ChannelData describes the most recent video a tutor was trained on.
type ChannelData struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Duration        string      `json:"duration"`
	ChannelName     string      `json:"channelName"`
	ChannelURL      string      `json:"channelUrl"`
	ChannelUsername string      `json:"channelUsername"`
	Date            string      `json:"date"`
	URL             string      `json:"url"`
	ViewCount       int64       `json:"viewCount"`
	FromYTURL       string      `json:"fromYTUrl"`
	Type            string      `json:"type"`
	ThumbnailURL    string      `json:"thumbnailUrl"`
	Input           string      `json:"input"`
	Order           int         `json:"order"`
	FromPlaylistURL string      `json:"fromPlaylistUrl"`
	ProgressKey     ProgressKey `json:"progressKey"`
	StandardizedURL string      `json:"standardizedUrl"`
}

// HistoryItem is one previously trained tutor as listed by the backend.
type HistoryItem struct {
	ID          string      `json:"_id"`
	InstanceID  string      `json:"instanceId"`
	ChannelData ChannelData `json:"channelData"`
}
