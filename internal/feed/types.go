package feed

import (
	"errors"
	"fmt"
	"time"
)

// SourceType 来源类型，封闭集合。
type SourceType string

const (
	SourceWeb        SourceType = "web"
	SourceYouTube    SourceType = "youtube"
	SourceTwitter    SourceType = "twitter"
	SourceTwitch     SourceType = "twitch"
	SourceDeviantArt SourceType = "deviantart"
	SourceMinecraft  SourceType = "minecraft"
)

// AllSourceTypes 按固定顺序列出全部来源类型（轮询批次按此顺序执行）。
var AllSourceTypes = []SourceType{
	SourceWeb,
	SourceYouTube,
	SourceTwitter,
	SourceTwitch,
	SourceDeviantArt,
	SourceMinecraft,
}

// ParseSourceType 解析来源类型字符串。
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(s)
	if !t.Valid() {
		return "", fmt.Errorf("未知的来源类型: %s", s)
	}
	return t, nil
}

// Valid 判断来源类型是否合法。
func (t SourceType) Valid() bool {
	switch t {
	case SourceWeb, SourceYouTube, SourceTwitter, SourceTwitch, SourceDeviantArt, SourceMinecraft:
		return true
	}
	return false
}

// Stateful 返回该来源是否为状态型来源。
// 状态型来源每次轮询产生单条"当前状态"消息，原地编辑而不是追加新消息。
func (t SourceType) Stateful() bool {
	return t == SourceMinecraft
}

// DefaultTemplate 返回该来源类型的默认消息模板。
func (t SourceType) DefaultTemplate() string {
	switch t {
	case SourceYouTube:
		return "{author} 发布了新视频: {title}\n{url}"
	case SourceTwitter:
		return "{author}: {title}\n{url}"
	case SourceTwitch:
		return "{author} 发布了新录播: {title}\n{url}"
	case SourceDeviantArt:
		return "{author} 发布了新作品: {title}\n{url}"
	case SourceMinecraft:
		return "{title}"
	default:
		return "{title}\n{url}"
	}
}

// 错误分类，调用方通过 errors.Is 判断。
var (
	// ErrSourceUnavailable 网络错误、超时或上游 5xx，下个周期重试。
	ErrSourceUnavailable = errors.New("来源暂时不可用")
	// ErrSourceInvalid 内容无法解析或上游 4xx，轮询时记录日志并跳过。
	ErrSourceInvalid = errors.New("来源无效")
	// ErrRateLimited 上游接口限流，本轮剩余同类来源全部跳过。
	ErrRateLimited = errors.New("来源接口限流")
	// ErrQuotaExceeded 目标频道订阅数已达上限。
	ErrQuotaExceeded = errors.New("订阅数量已达上限")
	// ErrInvalidLocator 无法识别的订阅地址。
	ErrInvalidLocator = errors.New("无法识别的订阅地址")
	// ErrNotFound 订阅不存在。
	ErrNotFound = errors.New("订阅不存在")
	// ErrDuplicate 同一目标频道已存在相同来源的订阅。
	ErrDuplicate = errors.New("订阅已存在")
)

// Watermark 订阅的去重游标。
// 时间线型来源使用 Time（最新已投递条目的发布时间）；
// 状态型来源使用 Ref（上次发出的状态消息引用）；
// 无法解析日期的退化来源使用 Ref 记录最近一次投递的条目链接。
type Watermark struct {
	Time time.Time
	Ref  string
}

// IsZero 判断游标是否为初始状态。
func (w Watermark) IsZero() bool {
	return w.Time.IsZero() && w.Ref == ""
}

// Item 单条候选通知，只在一次轮询周期内存活，不做持久化。
type Item struct {
	SourceType   SourceType
	Title        string
	URL          string
	Author       string
	PublishedAt  time.Time
	ImageURL     string
	IsRepost     bool
	RepostedFrom string
}

// Outcome 单次抓取的结果分类。
type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeSourceUnavailable Outcome = "source_unavailable"
	OutcomeSourceInvalid     Outcome = "source_invalid"
	OutcomeRateLimited       Outcome = "rate_limited"
)

// OutcomeOf 按错误分类推导抓取结果。
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, ErrSourceInvalid):
		return OutcomeSourceInvalid
	default:
		return OutcomeSourceUnavailable
	}
}

// PollResult 一次抓取的产出：结果分类、候选条目和候选新游标。
type PollResult struct {
	Outcome   Outcome
	Items     []Item
	Watermark Watermark
}

// Subscription 订阅记录，每行对应一个 (目标频道, 来源) 组合。
// 归注册表独占所有权，轮询过程只持有临时引用。
type Subscription struct {
	ID               string
	DestinationID    string
	OwnerScopeID     string
	SourceType       SourceType
	SourceIdentifier string
	Template         string
	MentionTargets   []string
	Watermark        Watermark
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RenderFields 返回条目用于模板渲染的字段表。
func (it Item) RenderFields() map[string]string {
	fields := map[string]string{
		"title":  it.Title,
		"url":    it.URL,
		"author": it.Author,
		"image":  it.ImageURL,
	}
	if !it.PublishedAt.IsZero() {
		fields["published"] = it.PublishedAt.Format("2006-01-02 15:04")
	}
	if it.IsRepost {
		fields["reposted_from"] = it.RepostedFrom
	}
	return fields
}
