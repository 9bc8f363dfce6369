package engine

import "testing"

func TestRender(t *testing.T) {
	cases := []struct {
		name     string
		template string
		fields   map[string]string
		want     string
	}{
		{
			name:     "basic substitution",
			template: "{author} 发布了新视频: {title}\n{url}",
			fields:   map[string]string{"author": "某频道", "title": "第一期", "url": "https://v.example/1"},
			want:     "某频道 发布了新视频: 第一期\nhttps://v.example/1",
		},
		{
			name:     "unknown placeholder kept literal",
			template: "{title} {unknown_thing}",
			fields:   map[string]string{"title": "标题"},
			want:     "标题 {unknown_thing}",
		},
		{
			name:     "no placeholders",
			template: "固定文案",
			fields:   map[string]string{"title": "x"},
			want:     "固定文案",
		},
		{
			name:     "repeated placeholder",
			template: "{title}/{title}",
			fields:   map[string]string{"title": "a"},
			want:     "a/a",
		},
	}
	for _, c := range cases {
		if got := Render(c.template, c.fields); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}
