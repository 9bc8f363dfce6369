package source

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/iabetor/feedbuddy/internal/config"
	"github.com/iabetor/feedbuddy/internal/feed"
)

// Twitch 频道录播源适配器，走录播 RSS 服务。
type Twitch struct {
	cfg    config.TwitchConfig
	client *http.Client
}

// NewTwitch 创建 Twitch 适配器。
func NewTwitch(cfg config.TwitchConfig, client *http.Client) *Twitch {
	return &Twitch{cfg: cfg, client: client}
}

func (t *Twitch) Type() feed.SourceType { return feed.SourceTwitch }

// Recognize 接受 twitch.tv 频道页地址。
func (t *Twitch) Recognize(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := u.Hostname()
	if host != "twitch.tv" && host != "www.twitch.tv" {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" || parts[0] == "videos" || parts[0] == "directory" {
		return "", false
	}
	return parts[0], true
}

// Fetch 抓取频道的录播列表。封面图内嵌在条目摘要里，按首个图片模式提取。
func (t *Twitch) Fetch(ctx context.Context, identifier string) (feed.PollResult, error) {
	f, err := fetchFeed(ctx, t.client, t.cfg.VODFeedBase+"/"+url.PathEscape(identifier))
	if err != nil {
		return failResult(err), err
	}

	items := normalizeEntries(feed.SourceTwitch, f)
	for i := range items {
		if items[i].Author == "" || items[i].Author == f.Title {
			items[i].Author = identifier
		}
	}
	return okResult(items), nil
}
