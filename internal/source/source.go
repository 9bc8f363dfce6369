// Package source 实现各来源类型的抓取适配器。
// 每个适配器把外部接口的原始数据拉取并归一化为内部的候选条目列表。
package source

import (
	"context"
	"net/http"

	"github.com/iabetor/feedbuddy/internal/config"
	"github.com/iabetor/feedbuddy/internal/feed"
)

// Adapter 单个来源类型的抓取适配器。
type Adapter interface {
	// Type 返回适配器负责的来源类型。
	Type() feed.SourceType

	// Recognize 尝试从原始订阅地址解析出本来源的标识，不发起网络请求。
	Recognize(raw string) (identifier string, ok bool)

	// Fetch 抓取外部数据并返回归一化的候选条目。
	// 超时或网络错误不抛异常，通过 PollResult.Outcome 和返回的错误分类表达。
	Fetch(ctx context.Context, identifier string) (feed.PollResult, error)
}

// Set 封闭的适配器集合，每个来源类型一个实现。
type Set struct {
	adapters []Adapter
	byType   map[feed.SourceType]Adapter
}

// NewSet 构建全部六类适配器。
// client 为共享的 HTTP 客户端，超时由调用方设定（不超过 8 秒抓取预算）。
func NewSet(cfg config.SourcesConfig, client *http.Client) *Set {
	// 识别顺序：具体平台在前，通用 Web 兜底在最后
	adapters := []Adapter{
		NewYouTube(client),
		NewTwitter(cfg.Twitter, client),
		NewTwitch(cfg.Twitch, client),
		NewDeviantArt(client),
		NewMinecraft(cfg.Minecraft, client),
		NewWeb(client),
	}

	byType := make(map[feed.SourceType]Adapter, len(adapters))
	for _, a := range adapters {
		byType[a.Type()] = a
	}
	return &Set{adapters: adapters, byType: byType}
}

// Resolve 依次尝试各适配器识别原始订阅地址。
func (s *Set) Resolve(raw string) (feed.SourceType, string, bool) {
	for _, a := range s.adapters {
		if id, ok := a.Recognize(raw); ok {
			return a.Type(), id, true
		}
	}
	return "", "", false
}

// For 返回指定来源类型的适配器。
func (s *Set) For(t feed.SourceType) (Adapter, bool) {
	a, ok := s.byType[t]
	return a, ok
}
