package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testYouTubeFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
  <title>测试频道</title>
  <entry>
    <title>新视频一则</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=abc123def45"/>
    <author><name>测试频道</name></author>
    <published>2026-02-19T08:00:00+00:00</published>
    <media:group>
      <media:thumbnail url="https://i.ytimg.com/vi/abc123def45/custom.jpg"/>
    </media:group>
  </entry>
</feed>`

const testYouTubeEmptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>空频道</title>
</feed>`

func TestYouTube_FetchChannelEndpoint(t *testing.T) {
	var channelHits, userHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("channel_id") != "" {
			channelHits++
			fmt.Fprint(w, testYouTubeFeed)
			return
		}
		userHits++
		fmt.Fprint(w, testYouTubeEmptyFeed)
	}))
	t.Cleanup(srv.Close)

	y := NewYouTube(srv.Client())
	y.channelFeedURL = srv.URL + "/feed?channel_id=%s"
	y.userFeedURL = srv.URL + "/feed?user=%s"

	result, err := y.Fetch(context.Background(), "UCabcdefghijklmnopqrst12")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if channelHits != 1 || userHits != 0 {
		t.Errorf("expected only channel endpoint hit, got channel=%d user=%d", channelHits, userHits)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	if result.Items[0].ImageURL != "https://i.ytimg.com/vi/abc123def45/custom.jpg" {
		t.Errorf("thumbnail from media:group: got %q", result.Items[0].ImageURL)
	}
}

func TestYouTube_FallbackToUserEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("channel_id") != "" {
			// 频道 ID 端点返回零条目
			fmt.Fprint(w, testYouTubeEmptyFeed)
			return
		}
		fmt.Fprint(w, testYouTubeFeed)
	}))
	t.Cleanup(srv.Close)

	y := NewYouTube(srv.Client())
	y.channelFeedURL = srv.URL + "/feed?channel_id=%s"
	y.userFeedURL = srv.URL + "/feed?user=%s"

	result, err := y.Fetch(context.Background(), "somelegacyuser")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item via user endpoint fallback, got %d", len(result.Items))
	}
}

func TestYouTube_ChannelErrorUserEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("channel_id") != "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, testYouTubeEmptyFeed)
	}))
	t.Cleanup(srv.Close)

	y := NewYouTube(srv.Client())
	y.channelFeedURL = srv.URL + "/feed?channel_id=%s"
	y.userFeedURL = srv.URL + "/feed?user=%s"

	// 用户名端点可达但没有视频：算有效的空源，不继承频道端点的错误
	result, err := y.Fetch(context.Background(), "somelegacyuser")
	if err != nil {
		t.Fatalf("reachable empty user feed should not error: %v", err)
	}
	if len(result.Items) != 0 {
		t.Errorf("expected empty result, got %d items", len(result.Items))
	}
}

func TestYouTube_Recognize(t *testing.T) {
	y := NewYouTube(http.DefaultClient)
	cases := []struct {
		raw    string
		wantID string
		wantOK bool
	}{
		{"UCabcdefghijklmnopqrst12", "UCabcdefghijklmnopqrst12", true},
		{"https://www.youtube.com/channel/UCabcdefghijklmnopqrst12", "UCabcdefghijklmnopqrst12", true},
		{"https://www.youtube.com/user/legacyname", "legacyname", true},
		{"https://www.youtube.com/@somehandle", "somehandle", true},
		{"https://example.com/feed.xml", "", false},
	}
	for _, c := range cases {
		id, ok := y.Recognize(c.raw)
		if ok != c.wantOK || id != c.wantID {
			t.Errorf("Recognize(%q): got (%q, %v), want (%q, %v)", c.raw, id, ok, c.wantID, c.wantOK)
		}
	}
}

func TestYouTubeThumbnail(t *testing.T) {
	got := youtubeThumbnail("https://www.youtube.com/watch?v=abc123def45")
	if got != "https://i.ytimg.com/vi/abc123def45/hqdefault.jpg" {
		t.Errorf("thumbnail: got %q", got)
	}
	if youtubeThumbnail("https://example.com/nope") != "" {
		t.Error("non-video link should yield empty thumbnail")
	}
}
