package feed

import "sort"

// Dedupe 根据订阅游标过滤候选条目，返回未投递的条目（从旧到新）和新游标。
//
// 条目按发布时间从新到旧排序后自最新一条开始收集，遇到不晚于游标的条目即停止
// （来源按最新在前返回，越过游标之后不可能再出现更新的条目），最后反转切片，
// 使调用方按发布顺序投递。空条目列表原样返回游标。
func Dedupe(items []Item, mark Watermark) ([]Item, Watermark) {
	if len(items) == 0 {
		return nil, mark
	}

	dated, undated := splitByDate(items)
	if len(dated) == 0 {
		return dedupeUndated(undated, mark)
	}

	sort.Slice(dated, func(i, j int) bool {
		return dated[i].PublishedAt.After(dated[j].PublishedAt)
	})

	var unseen []Item
	for _, it := range dated {
		if !it.PublishedAt.After(mark.Time) {
			break
		}
		unseen = append(unseen, it)
	}

	if len(unseen) == 0 {
		return nil, mark
	}

	// 反转为从旧到新，保持投递顺序
	for i, j := 0, len(unseen)-1; i < j; i, j = i+1, j-1 {
		unseen[i], unseen[j] = unseen[j], unseen[i]
	}

	newMark := mark
	newMark.Time = unseen[len(unseen)-1].PublishedAt
	return unseen, newMark
}

// splitByDate 把条目分成有发布时间和没有发布时间两组。
func splitByDate(items []Item) (dated, undated []Item) {
	for _, it := range items {
		if it.PublishedAt.IsZero() {
			undated = append(undated, it)
		} else {
			dated = append(dated, it)
		}
	}
	return dated, undated
}

// dedupeUndated 处理完全没有可解析日期的来源。
// 退化策略：仅在首次轮询时把最新一条视为未投递，并以其链接作为游标；
// 之后的轮询一律不投递。该策略可能少报也可能重报，是已知的不精确回退。
func dedupeUndated(items []Item, mark Watermark) ([]Item, Watermark) {
	if !mark.IsZero() {
		return nil, mark
	}

	newest := items[0]
	newMark := mark
	newMark.Ref = newest.URL
	return []Item{newest}, newMark
}
