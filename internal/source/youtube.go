package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/iabetor/feedbuddy/internal/feed"
)

// YouTube 频道视频源适配器，走公开的频道/用户视频 XML 端点，无需 API 密钥。
type YouTube struct {
	client *http.Client

	// 测试注入点，默认为官方端点
	channelFeedURL string
	userFeedURL    string
}

var youtubeChannelIDRe = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

// NewYouTube 创建 YouTube 适配器。
func NewYouTube(client *http.Client) *YouTube {
	return &YouTube{
		client:         client,
		channelFeedURL: "https://www.youtube.com/feeds/videos.xml?channel_id=%s",
		userFeedURL:    "https://www.youtube.com/feeds/videos.xml?user=%s",
	}
}

func (y *YouTube) Type() feed.SourceType { return feed.SourceYouTube }

// Recognize 接受频道/用户页地址或裸的频道 ID。
func (y *YouTube) Recognize(raw string) (string, bool) {
	if youtubeChannelIDRe.MatchString(raw) {
		return raw, true
	}

	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Hostname(), "youtube.com") {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) >= 2 && (parts[0] == "channel" || parts[0] == "user" || parts[0] == "c"):
		return parts[1], true
	case len(parts) == 1 && strings.HasPrefix(parts[0], "@"):
		return strings.TrimPrefix(parts[0], "@"), true
	}
	return "", false
}

// Fetch 先请求频道 ID 端点，返回零条目时回退到用户名端点。
func (y *YouTube) Fetch(ctx context.Context, identifier string) (feed.PollResult, error) {
	f, err := fetchFeed(ctx, y.client, fmt.Sprintf(y.channelFeedURL, url.QueryEscape(identifier)))
	if err != nil || len(f.Items) == 0 {
		uf, uerr := fetchFeed(ctx, y.client, fmt.Sprintf(y.userFeedURL, url.QueryEscape(identifier)))
		switch {
		case uerr == nil:
			// 用户名端点可达即以其结果为准，空列表也算有效的空源
			f, err = uf, nil
		case err != nil:
			return failResult(err), err
		}
	}

	items := normalizeEntries(feed.SourceYouTube, f)
	for i := range items {
		if items[i].ImageURL == "" {
			items[i].ImageURL = youtubeThumbnail(items[i].URL)
		}
	}
	return okResult(items), nil
}

// youtubeThumbnail 从视频链接推导封面图地址。
func youtubeThumbnail(videoURL string) string {
	u, err := url.Parse(videoURL)
	if err != nil {
		return ""
	}
	id := u.Query().Get("v")
	if id == "" {
		return ""
	}
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", id)
}
