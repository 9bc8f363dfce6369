package source

import (
	"context"
	"net/http"
	"net/url"

	"github.com/iabetor/feedbuddy/internal/feed"
)

// Web 通用 RSS/Atom 抓取适配器，所有 http(s) 订阅地址的兜底实现。
type Web struct {
	client *http.Client
}

// NewWeb 创建通用 Web 适配器。
func NewWeb(client *http.Client) *Web {
	return &Web{client: client}
}

func (w *Web) Type() feed.SourceType { return feed.SourceWeb }

// Recognize 接受任何带 http/https 协议头的地址。
func (w *Web) Recognize(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return raw, true
}

// Fetch 抓取并解析订阅地址。镜像站失效等不可用错误不在此处重试，
// 由调度器在下个周期再次尝试。
func (w *Web) Fetch(ctx context.Context, identifier string) (feed.PollResult, error) {
	f, err := fetchFeed(ctx, w.client, identifier)
	if err != nil {
		return failResult(err), err
	}
	return okResult(normalizeEntries(feed.SourceWeb, f)), nil
}
