package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/iabetor/feedbuddy/internal/config"
	"github.com/iabetor/feedbuddy/internal/feed"
	"github.com/iabetor/feedbuddy/internal/logger"
)

// Twitter 用户时间线适配器，排除回复，识别转推。
type Twitter struct {
	cfg    config.TwitterConfig
	client *http.Client
}

var twitterRetweetRe = regexp.MustCompile(`^RT @([A-Za-z0-9_]+):\s*`)

// NewTwitter 创建 Twitter/X 适配器。
func NewTwitter(cfg config.TwitterConfig, client *http.Client) *Twitter {
	return &Twitter{cfg: cfg, client: client}
}

func (t *Twitter) Type() feed.SourceType { return feed.SourceTwitter }

// Recognize 接受 @handle 形式或 twitter.com / x.com 用户页地址。
func (t *Twitter) Recognize(raw string) (string, bool) {
	if strings.HasPrefix(raw, "@") {
		handle := strings.TrimPrefix(raw, "@")
		if handle != "" && !strings.ContainsAny(handle, "/ ") {
			return handle, true
		}
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := u.Hostname()
	if host != "twitter.com" && host != "www.twitter.com" && host != "x.com" && host != "www.x.com" {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" || parts[0] == "home" || parts[0] == "search" {
		return "", false
	}
	return parts[0], true
}

// apiTweet 时间线接口返回的单条推文（只解字段子集）。
type apiTweet struct {
	IDStr     string `json:"id_str"`
	CreatedAt string `json:"created_at"`
	Text      string `json:"text"`
	FullText  string `json:"full_text"`
	User      struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	RetweetedStatus *struct {
		User struct {
			ScreenName string `json:"screen_name"`
		} `json:"user"`
	} `json:"retweeted_status"`
	Entities struct {
		Media []struct {
			URL           string `json:"url"`
			MediaURLHTTPS string `json:"media_url_https"`
		} `json:"media"`
	} `json:"entities"`
}

// Fetch 拉取用户时间线并归一化，回复被接口参数直接排除。
func (t *Twitter) Fetch(ctx context.Context, identifier string) (feed.PollResult, error) {
	endpoint := fmt.Sprintf(
		"%s/statuses/user_timeline.json?screen_name=%s&count=50&exclude_replies=true&include_rts=true&tweet_mode=extended",
		t.cfg.APIBase, url.QueryEscape(identifier))

	header := map[string]string{}
	if t.cfg.BearerToken != "" {
		header["Authorization"] = "Bearer " + t.cfg.BearerToken
	}

	body, err := httpGet(ctx, t.client, endpoint, header)
	if err != nil {
		return failResult(err), err
	}

	var tweets []apiTweet
	if err := json.Unmarshal(body, &tweets); err != nil {
		err = fmt.Errorf("%w: 解析时间线失败: %v", feed.ErrSourceInvalid, err)
		return failResult(err), err
	}

	items := make([]feed.Item, 0, len(tweets))
	for _, tw := range tweets {
		if it, ok := t.normalize(identifier, tw); ok {
			items = append(items, it)
		}
	}
	return okResult(items), nil
}

// normalize 把单条推文转换为候选条目，格式损坏的条目丢弃。
func (t *Twitter) normalize(identifier string, tw apiTweet) (feed.Item, bool) {
	if tw.IDStr == "" {
		return feed.Item{}, false
	}

	text := tw.FullText
	if text == "" {
		text = tw.Text
	}

	// 转推判定：显式字段优先，缺失时回退到文本前缀匹配
	isRepost := false
	repostedFrom := ""
	if tw.RetweetedStatus != nil {
		isRepost = true
		repostedFrom = tw.RetweetedStatus.User.ScreenName
	} else if m := twitterRetweetRe.FindStringSubmatch(text); m != nil {
		isRepost = true
		repostedFrom = m[1]
	}

	// 附带图片时去掉末尾重复的短链
	image := ""
	for _, media := range tw.Entities.Media {
		if media.MediaURLHTTPS == "" {
			continue
		}
		if image == "" {
			image = media.MediaURLHTTPS
		}
		if media.URL != "" && strings.HasSuffix(strings.TrimSpace(text), media.URL) {
			text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), media.URL))
		}
	}

	published, err := time.Parse(time.RubyDate, tw.CreatedAt)
	if err != nil {
		logger.Debugf("[twitter] 推文 %s 的时间解析失败: %v", tw.IDStr, err)
		published = time.Time{}
	}

	author := tw.User.Name
	if author == "" {
		author = "@" + tw.User.ScreenName
	}
	screenName := tw.User.ScreenName
	if screenName == "" {
		screenName = identifier
	}

	return feed.Item{
		SourceType:   feed.SourceTwitter,
		Title:        text,
		URL:          fmt.Sprintf("https://twitter.com/%s/status/%s", screenName, tw.IDStr),
		Author:       author,
		PublishedAt:  published,
		ImageURL:     image,
		IsRepost:     isRepost,
		RepostedFrom: repostedFrom,
	}, true
}
