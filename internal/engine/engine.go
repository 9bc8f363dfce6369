// Package engine 是订阅系统的核心：订阅生命周期管理、轮询调度和消息分发。
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/iabetor/feedbuddy/internal/config"
	"github.com/iabetor/feedbuddy/internal/delivery"
	"github.com/iabetor/feedbuddy/internal/feed"
	"github.com/iabetor/feedbuddy/internal/logger"
	"github.com/iabetor/feedbuddy/internal/source"
)

// Engine 对外的统一入口，命令层只依赖这里的方法。
type Engine struct {
	cfg       *config.Config
	registry  *feed.Registry
	sources   *source.Set
	scheduler *Scheduler
}

// New 组装引擎。
func New(cfg *config.Config, registry *feed.Registry, sources *source.Set, deliverer delivery.Deliverer, resolver delivery.MentionResolver) *Engine {
	dispatcher := NewDispatcher(registry, deliverer, resolver)
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		sources:   sources,
		scheduler: NewScheduler(cfg.Engine, registry, sources, dispatcher),
	}
}

// Subscribe 创建订阅：识别订阅地址、做一次可达性探测、初始化游标后入库。
// 游标初始化为探测到的最新条目时间，历史条目不会在首轮被重发。
func (e *Engine) Subscribe(ctx context.Context, destinationID, ownerScopeID, rawLocator string) (*feed.Subscription, error) {
	t, identifier, ok := e.sources.Resolve(rawLocator)
	if !ok {
		return nil, fmt.Errorf("%w: %s", feed.ErrInvalidLocator, rawLocator)
	}

	adapter, _ := e.sources.For(t)
	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.Engine.FetchTimeout())
	defer cancel()
	result, err := adapter.Fetch(probeCtx, identifier)
	if err != nil {
		return nil, fmt.Errorf("订阅地址探测失败: %w", err)
	}

	sub := &feed.Subscription{
		DestinationID:    destinationID,
		OwnerScopeID:     ownerScopeID,
		SourceType:       t,
		SourceIdentifier: identifier,
		Watermark:        result.Watermark,
	}
	if t.Stateful() {
		// 状态型来源首轮照常发出状态消息，游标由分发时写入
		sub.Watermark = feed.Watermark{}
	}
	if err := e.registry.Create(ctx, sub); err != nil {
		return nil, err
	}
	logger.Infof("[engine] 新增订阅 %s: %s %s → %s", sub.ID, t, identifier, destinationID)
	return sub, nil
}

// Unsubscribe 删除订阅。
func (e *Engine) Unsubscribe(ctx context.Context, id string) error {
	if err := e.registry.Remove(ctx, id); err != nil {
		return err
	}
	logger.Infof("[engine] 删除订阅 %s", id)
	return nil
}

// ListSubscriptions 列出归属域下的全部订阅。
func (e *Engine) ListSubscriptions(ctx context.Context, ownerScopeID string) ([]*feed.Subscription, error) {
	return e.registry.ListByOwnerScope(ctx, ownerScopeID)
}

// SetTemplate 修改订阅的消息模板，空串恢复该来源的默认模板。
func (e *Engine) SetTemplate(ctx context.Context, id, template string) error {
	return e.registry.UpdateTemplate(ctx, id, template)
}

// SetMentions 修改订阅的提及引用列表。
func (e *Engine) SetMentions(ctx context.Context, id string, targets []string) error {
	return e.registry.UpdateMentions(ctx, id, targets)
}

// SetScopeQuota 覆盖归属域的订阅配额，max <= 0 时恢复默认配额。
func (e *Engine) SetScopeQuota(ctx context.Context, scopeID string, max int) error {
	return e.registry.SetScopeQuota(ctx, scopeID, max)
}

// TriggerGlobalPoll 立即对全部订阅执行一轮轮询。
func (e *Engine) TriggerGlobalPoll(ctx context.Context) Summary {
	return e.scheduler.RunGlobal(ctx)
}

// TriggerScopedPoll 立即轮询指定归属域的订阅。
func (e *Engine) TriggerScopedPoll(ctx context.Context, ownerScopeID string) Summary {
	return e.scheduler.RunScoped(ctx, ownerScopeID)
}

// Run 按固定周期循环执行全局轮询，首轮对齐到整分钟边界，ctx 取消后优雅退出。
func (e *Engine) Run(ctx context.Context) {
	if subs, err := e.registry.ListAll(ctx); err == nil {
		logger.Infof("[engine] 引擎启动，当前共 %d 条订阅，轮询周期 %s", len(subs), e.cfg.Engine.PollInterval())
	}

	first := time.Until(time.Now().Truncate(time.Minute).Add(time.Minute))
	select {
	case <-time.After(first):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(e.cfg.Engine.PollInterval())
	defer ticker.Stop()

	e.scheduler.RunGlobal(ctx)
	for {
		select {
		case <-ticker.C:
			e.scheduler.RunGlobal(ctx)
		case <-ctx.Done():
			logger.Infof("[engine] 引擎停止")
			return
		}
	}
}
