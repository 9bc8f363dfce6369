package engine

import (
	"context"

	"github.com/iabetor/feedbuddy/internal/delivery"
	"github.com/iabetor/feedbuddy/internal/feed"
	"github.com/iabetor/feedbuddy/internal/logger"
)

// Dispatcher 把一次抓取的候选条目转成对单个订阅的实际投递。
// 时间线型来源按最旧在前逐条发送；状态型来源原地编辑上一条状态消息。
type Dispatcher struct {
	registry  *feed.Registry
	deliverer delivery.Deliverer
	resolver  delivery.MentionResolver
}

// NewDispatcher 创建投递调度器。resolver 可为 nil，此时所有提及引用都被丢弃。
func NewDispatcher(registry *feed.Registry, deliverer delivery.Deliverer, resolver delivery.MentionResolver) *Dispatcher {
	return &Dispatcher{registry: registry, deliverer: deliverer, resolver: resolver}
}

// Dispatch 处理单个订阅的抓取结果，返回成功投递（含编辑）的消息数。
// 单条投递失败只记日志并跳过，不阻塞批次内的其余条目；
// 批次结束后无论投递成败都推进游标，避免失败条目被反复重发。
func (d *Dispatcher) Dispatch(ctx context.Context, sub *feed.Subscription, result feed.PollResult) int {
	if sub.SourceType.Stateful() {
		return d.dispatchStatus(ctx, sub, result)
	}
	return d.dispatchTimeline(ctx, sub, result)
}

func (d *Dispatcher) dispatchTimeline(ctx context.Context, sub *feed.Subscription, result feed.PollResult) int {
	unseen, newMark := feed.Dedupe(result.Items, sub.Watermark)
	if len(unseen) == 0 {
		return 0
	}

	mentions := d.resolveMentions(sub)
	delivered := 0
	for _, item := range unseen {
		content := Render(sub.Template, item.RenderFields())
		if _, err := d.deliverer.Send(ctx, sub.DestinationID, content, mentions); err != nil {
			logger.Warnf("[engine] 订阅 %s 投递失败，跳过该条: %v", sub.ID, err)
			continue
		}
		delivered++
	}

	if newMark != sub.Watermark {
		if err := d.registry.UpdateWatermark(ctx, sub.ID, newMark); err != nil {
			logger.Errorf("[engine] 订阅 %s 更新游标失败: %v", sub.ID, err)
		} else {
			sub.Watermark = newMark
		}
	}
	return delivered
}

// dispatchStatus 状态型来源：单条"当前状态"消息，优先编辑上次发出的那条，
// 消息已被删除时重新发送并记住新句柄。
func (d *Dispatcher) dispatchStatus(ctx context.Context, sub *feed.Subscription, result feed.PollResult) int {
	if len(result.Items) == 0 {
		return 0
	}
	content := Render(sub.Template, result.Items[0].RenderFields())

	if sub.Watermark.Ref != "" {
		err := d.deliverer.Edit(ctx, sub.DestinationID, delivery.MessageRef(sub.Watermark.Ref), content)
		if err == nil {
			return 1
		}
		if delivery.KindOf(err) != delivery.KindNotFound {
			logger.Warnf("[engine] 订阅 %s 编辑状态消息失败: %v", sub.ID, err)
			return 0
		}
		logger.Debugf("[engine] 订阅 %s 的状态消息已不存在，重新发送", sub.ID)
	}

	ref, err := d.deliverer.Send(ctx, sub.DestinationID, content, d.resolveMentions(sub))
	if err != nil {
		logger.Warnf("[engine] 订阅 %s 投递状态消息失败: %v", sub.ID, err)
		return 0
	}

	newMark := feed.Watermark{Ref: string(ref)}
	if err := d.registry.UpdateWatermark(ctx, sub.ID, newMark); err != nil {
		logger.Errorf("[engine] 订阅 %s 更新游标失败: %v", sub.ID, err)
	} else {
		sub.Watermark = newMark
	}
	return 1
}

// resolveMentions 解析订阅的提及引用，解析失败的引用直接丢弃。
func (d *Dispatcher) resolveMentions(sub *feed.Subscription) []string {
	if d.resolver == nil || len(sub.MentionTargets) == 0 {
		return nil
	}
	var mentions []string
	for _, ref := range sub.MentionTargets {
		if m, ok := d.resolver.Resolve(sub.OwnerScopeID, ref); ok {
			mentions = append(mentions, m)
		} else {
			logger.Debugf("[engine] 订阅 %s 的提及引用 %s 无法解析，已丢弃", sub.ID, ref)
		}
	}
	return mentions
}
