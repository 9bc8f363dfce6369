package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iabetor/feedbuddy/internal/config"
)

const testVODFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>somecaster's Twitch video RSS</title>
  <link>https://www.twitch.tv/somecaster</link>
  <item>
    <title>周末联机实况 第3期</title>
    <link>https://www.twitch.tv/videos/111</link>
    <description>&lt;a href="https://www.twitch.tv/videos/111"&gt;&lt;img src="https://static-cdn.jtvnw.net/cf_vods/111/thumb.jpg" /&gt;&lt;/a&gt;</description>
    <pubDate>Sat, 06 Apr 2024 20:00:00 +0000</pubDate>
  </item>
  <item>
    <title>新档开荒</title>
    <link>https://www.twitch.tv/videos/110</link>
    <pubDate>Fri, 05 Apr 2024 19:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`

func TestTwitch_Fetch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testVODFeed)
	}))
	defer srv.Close()

	tw := NewTwitch(config.TwitchConfig{VODFeedBase: srv.URL}, srv.Client())
	result, err := tw.Fetch(context.Background(), "somecaster")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/somecaster" {
		t.Errorf("request path: got %q", gotPath)
	}
	if len(result.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(result.Items))
	}

	first := result.Items[0]
	if first.Title != "周末联机实况 第3期" {
		t.Errorf("title: got %q", first.Title)
	}
	// 源标题不是可用的作者名，回退到频道标识
	if first.Author != "somecaster" {
		t.Errorf("author: got %q, want channel identifier", first.Author)
	}
	if first.ImageURL != "https://static-cdn.jtvnw.net/cf_vods/111/thumb.jpg" {
		t.Errorf("thumbnail from description: got %q", first.ImageURL)
	}
	if result.Items[1].ImageURL != "" {
		t.Errorf("item without thumbnail: got %q", result.Items[1].ImageURL)
	}
}

func TestTwitch_Recognize(t *testing.T) {
	tw := NewTwitch(config.TwitchConfig{}, http.DefaultClient)
	cases := []struct {
		raw    string
		wantID string
		wantOK bool
	}{
		{"https://www.twitch.tv/somecaster", "somecaster", true},
		{"https://twitch.tv/somecaster/videos", "somecaster", true},
		{"https://www.twitch.tv/videos/12345", "", false},
		{"https://www.twitch.tv/directory/game/Minecraft", "", false},
		{"https://www.twitch.tv/", "", false},
		{"https://www.youtube.com/@someone", "", false},
	}
	for _, c := range cases {
		id, ok := tw.Recognize(c.raw)
		if ok != c.wantOK || id != c.wantID {
			t.Errorf("Recognize(%q): got (%q, %v), want (%q, %v)", c.raw, id, ok, c.wantID, c.wantOK)
		}
	}
}
