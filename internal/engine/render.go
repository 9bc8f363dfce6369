package engine

import "regexp"

// 模板占位符形如 {title}、{url}
var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Render 按字段表替换模板里的占位符。未知占位符原样保留。
func Render(template string, fields map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := fields[name]; ok {
			return v
		}
		return m
	})
}
