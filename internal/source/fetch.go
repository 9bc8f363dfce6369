package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mmcdole/gofeed"

	"github.com/iabetor/feedbuddy/internal/feed"
)

const userAgent = "FeedBuddy/1.0 (+https://github.com/iabetor/feedbuddy)"

// httpGet 发起一次 GET 请求并读出响应体，错误按规范分类：
// 超时和网络错误、5xx 归为来源暂时不可用；429 归为限流；其余 4xx 归为来源无效。
// 适配器不做重试，由调度器在下个周期再次尝试。
func httpGet(ctx context.Context, client *http.Client, url string, header map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrSourceInvalid, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", feed.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP %d", feed.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", feed.ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", feed.ErrSourceInvalid, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %v", feed.ErrSourceUnavailable, err)
	}
	return body, nil
}

// fetchFeed 抓取并解析一个 RSS/Atom 源。
// 解析器不是并发安全的，每次抓取新建一个。
func fetchFeed(ctx context.Context, client *http.Client, url string) (*gofeed.Feed, error) {
	body, err := httpGet(ctx, client, url, nil)
	if err != nil {
		return nil, err
	}

	f, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: 解析失败: %v", feed.ErrSourceInvalid, err)
	}
	return f, nil
}

// okResult 把归一化条目打包为成功结果，候选游标取最新条目的发布时间。
func okResult(items []feed.Item) feed.PollResult {
	result := feed.PollResult{Outcome: feed.OutcomeOK, Items: items}
	for _, it := range items {
		if it.PublishedAt.After(result.Watermark.Time) {
			result.Watermark.Time = it.PublishedAt
		}
	}
	return result
}

// failResult 把抓取错误打包为失败结果。
func failResult(err error) feed.PollResult {
	return feed.PollResult{Outcome: feed.OutcomeOf(err)}
}
