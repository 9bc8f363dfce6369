package source

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/iabetor/feedbuddy/internal/feed"
)

// Normalize 把 gofeed 条目转换为内部候选条目。纯函数，不做任何 I/O。
// 缺少链接的条目无法投递，返回 ok=false 由调用方静默丢弃。
func Normalize(t feed.SourceType, entry *gofeed.Item, fallbackAuthor string) (feed.Item, bool) {
	if entry == nil || entry.Link == "" {
		return feed.Item{}, false
	}

	// 日期字段统一：published 优先，缺失时回退 updated，都没有则保持零值
	var published time.Time
	if entry.PublishedParsed != nil {
		published = *entry.PublishedParsed
	} else if entry.UpdatedParsed != nil {
		published = *entry.UpdatedParsed
	}

	// 作者字段统一
	author := fallbackAuthor
	if entry.Author != nil && entry.Author.Name != "" {
		author = entry.Author.Name
	} else if len(entry.Authors) > 0 && entry.Authors[0].Name != "" {
		author = entry.Authors[0].Name
	}

	// 没有显式媒体字段时，从正文里按首个图片模式兜底
	image := explicitImage(entry)
	if image == "" {
		image = FirstImage(entry.Description)
	}
	if image == "" {
		image = FirstImage(entry.Content)
	}

	return feed.Item{
		SourceType:  t,
		Title:       StripMarkup(entry.Title),
		URL:         entry.Link,
		Author:      author,
		PublishedAt: published,
		ImageURL:    image,
	}, true
}

// normalizeEntries 归一化整个源的条目，格式损坏的条目跳过而不中断整批。
func normalizeEntries(t feed.SourceType, f *gofeed.Feed) []feed.Item {
	fallbackAuthor := f.Title
	items := make([]feed.Item, 0, len(f.Items))
	for _, entry := range f.Items {
		if it, ok := Normalize(t, entry, fallbackAuthor); ok {
			items = append(items, it)
		}
	}
	return items
}

// explicitImage 从条目的显式媒体字段提取图片地址。
func explicitImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return mediaExtensionImage(entry)
}

// mediaExtensionImage 从 media RSS 扩展（media:thumbnail / media:content /
// media:group）提取图片地址。
func mediaExtensionImage(entry *gofeed.Item) string {
	media, ok := entry.Extensions["media"]
	if !ok {
		return ""
	}
	for _, name := range []string{"thumbnail", "content"} {
		for _, ext := range media[name] {
			if url := ext.Attrs["url"]; url != "" {
				return url
			}
		}
	}
	for _, group := range media["group"] {
		for _, thumb := range group.Children["thumbnail"] {
			if url := thumb.Attrs["url"]; url != "" {
				return url
			}
		}
	}
	return ""
}

// StripMarkup 剥离 HTML 标签，只保留纯文本并合并连续空白。
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.WriteString(tokenizer.Token().Data)
				b.WriteByte(' ')
			}
		}
	}
}

// FirstImage 返回 HTML 片段里第一个 <img> 的 src 地址，没有则返回空串。
func FirstImage(s string) string {
	if !strings.Contains(s, "<") {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "src" {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}
