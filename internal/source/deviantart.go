package source

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/iabetor/feedbuddy/internal/feed"
)

// DeviantArt 画廊源适配器，走公开的画廊 RSS 后端。
type DeviantArt struct {
	client *http.Client

	// 测试注入点，默认为官方端点
	galleryFeedURL string
}

// 画廊源标题的固定文案格式，从中提取作者显示名
var deviantArtTitleRe = regexp.MustCompile(`^(.+?)(?:'s)? (?:DeviantArt )?[Gg]allery`)

// NewDeviantArt 创建 DeviantArt 适配器。
func NewDeviantArt(client *http.Client) *DeviantArt {
	return &DeviantArt{
		client:         client,
		galleryFeedURL: "https://backend.deviantart.com/rss.xml?type=deviation&q=",
	}
}

func (d *DeviantArt) Type() feed.SourceType { return feed.SourceDeviantArt }

// Recognize 接受 deviantart.com 用户页地址或 <user>.deviantart.com 子域。
func (d *DeviantArt) Recognize(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := u.Hostname()
	switch {
	case host == "deviantart.com" || host == "www.deviantart.com":
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 0 || parts[0] == "" {
			return "", false
		}
		return parts[0], true
	case strings.HasSuffix(host, ".deviantart.com"):
		sub := strings.TrimSuffix(host, ".deviantart.com")
		if sub == "" || sub == "www" || sub == "backend" {
			return "", false
		}
		return sub, true
	}
	return "", false
}

// Fetch 抓取用户画廊。作者显示名按固定文案格式从源标题里提取。
func (d *DeviantArt) Fetch(ctx context.Context, identifier string) (feed.PollResult, error) {
	endpoint := d.galleryFeedURL + url.QueryEscape("gallery:"+identifier)
	f, err := fetchFeed(ctx, d.client, endpoint)
	if err != nil {
		return failResult(err), err
	}

	author := identifier
	if m := deviantArtTitleRe.FindStringSubmatch(f.Title); m != nil {
		author = m[1]
	}

	items := normalizeEntries(feed.SourceDeviantArt, f)
	for i := range items {
		if items[i].Author == "" || items[i].Author == f.Title {
			items[i].Author = author
		}
	}
	return okResult(items), nil
}
