package engine

import (
	"context"
	"sync"
	"time"

	"github.com/iabetor/feedbuddy/internal/config"
	"github.com/iabetor/feedbuddy/internal/feed"
	"github.com/iabetor/feedbuddy/internal/logger"
	"github.com/iabetor/feedbuddy/internal/source"
)

// Summary 一轮轮询的统计。
type Summary struct {
	// Polled 实际执行了抓取与分发的订阅数
	Polled int
	// Delivered 成功投递（含编辑）的消息数
	Delivered int
	// Errored 抓取失败或因限流被跳过的订阅数
	Errored int
}

// fetchOutcome 单个 (来源类型, 标识) 的抓取产出，同一轮内被共享该来源的订阅复用。
type fetchOutcome struct {
	result feed.PollResult
	err    error
}

// Scheduler 轮询调度器。按来源类型分批，批内按标识去重抓取，
// 并发受信号量约束，批内相邻抓取之间留出间隔。
type Scheduler struct {
	cfg        config.EngineConfig
	registry   *feed.Registry
	sources    *source.Set
	dispatcher *Dispatcher

	// 订阅级别的进行中标记：全局轮询与按域轮询重叠时，后到者跳过而不是排队
	inflight sync.Map
}

// NewScheduler 创建调度器。
func NewScheduler(cfg config.EngineConfig, registry *feed.Registry, sources *source.Set, dispatcher *Dispatcher) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		registry:   registry,
		sources:    sources,
		dispatcher: dispatcher,
	}
}

// RunGlobal 对全部订阅执行一轮轮询。
func (s *Scheduler) RunGlobal(ctx context.Context) Summary {
	subs, err := s.registry.ListAll(ctx)
	if err != nil {
		logger.Errorf("[engine] 读取订阅列表失败: %v", err)
		return Summary{}
	}
	return s.run(ctx, subs)
}

// RunScoped 只轮询指定归属域的订阅。
func (s *Scheduler) RunScoped(ctx context.Context, ownerScopeID string) Summary {
	subs, err := s.registry.ListByOwnerScope(ctx, ownerScopeID)
	if err != nil {
		logger.Errorf("[engine] 读取域 %s 的订阅列表失败: %v", ownerScopeID, err)
		return Summary{}
	}
	return s.run(ctx, subs)
}

func (s *Scheduler) run(ctx context.Context, subs []*feed.Subscription) Summary {
	var sum Summary
	if len(subs) == 0 {
		return sum
	}

	byType := make(map[feed.SourceType][]*feed.Subscription)
	for _, sub := range subs {
		byType[sub.SourceType] = append(byType[sub.SourceType], sub)
	}

	start := time.Now()
	// 来源类型按固定顺序执行，便于日志对账
	for _, t := range feed.AllSourceTypes {
		batch := byType[t]
		if len(batch) == 0 {
			continue
		}
		s.runBatch(ctx, t, batch, &sum)
	}
	logger.Infof("[engine] 轮询完成: 订阅 %d 条，投递 %d 条，异常 %d 条，耗时 %s",
		sum.Polled, sum.Delivered, sum.Errored, time.Since(start).Round(time.Millisecond))
	return sum
}

// runBatch 执行单个来源类型批次：先按标识去重并发抓取，再逐订阅分发。
func (s *Scheduler) runBatch(ctx context.Context, t feed.SourceType, batch []*feed.Subscription, sum *Summary) {
	adapter, ok := s.sources.For(t)
	if !ok {
		logger.Errorf("[engine] 缺少 %s 类型的适配器，跳过 %d 条订阅", t, len(batch))
		sum.Errored += len(batch)
		return
	}

	// 同一轮内相同 (类型, 标识) 只抓一次
	identifiers := make([]string, 0, len(batch))
	seen := make(map[string]bool, len(batch))
	for _, sub := range batch {
		if !seen[sub.SourceIdentifier] {
			seen[sub.SourceIdentifier] = true
			identifiers = append(identifiers, sub.SourceIdentifier)
		}
	}

	outcomes := s.fetchAll(ctx, adapter, identifiers)

	for _, sub := range batch {
		if ctx.Err() != nil {
			return
		}
		out, fetched := outcomes[sub.SourceIdentifier]
		if !fetched {
			// 限流导致批次剩余部分未抓取
			sum.Errored++
			continue
		}

		s.pollOne(ctx, sub.ID, out, sum)
	}
}

// pollOne 处理单个订阅的分发，是订阅级别的临界区。
// 列表快照里的游标可能已被重叠的另一轮推进过，拿到进行中标记后
// 必须重新读取订阅，用最新游标去重，否则同一条目会被投递两次。
func (s *Scheduler) pollOne(ctx context.Context, subID string, out fetchOutcome, sum *Summary) {
	if _, loaded := s.inflight.LoadOrStore(subID, struct{}{}); loaded {
		logger.Debugf("[engine] 订阅 %s 正在处理中，本轮跳过", subID)
		return
	}
	defer s.inflight.Delete(subID)

	sub, err := s.registry.Get(ctx, subID)
	if err != nil {
		// 本轮进行中被删除的订阅直接跳过
		logger.Debugf("[engine] 订阅 %s 重新读取失败，本轮跳过: %v", subID, err)
		return
	}

	sum.Polled++
	if out.err != nil {
		logger.Warnf("[engine] 订阅 %s 抓取失败 (%s): %v", sub.ID, out.result.Outcome, out.err)
		sum.Errored++
		return
	}
	sum.Delivered += s.dispatcher.Dispatch(ctx, sub, out.result)
}

// fetchAll 并发抓取一批标识。信号量约束并发量，相邻两次启动之间留出间隔，
// 一旦出现限流就不再启动批内剩余的抓取。
func (s *Scheduler) fetchAll(ctx context.Context, adapter source.Adapter, identifiers []string) map[string]fetchOutcome {
	outcomes := make(map[string]fetchOutcome, len(identifiers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var rateLimited bool

	sem := make(chan struct{}, s.cfg.Concurrency)
	for i, id := range identifiers {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		// 限流标记在拿到信号量之后再检查：等待槽位期间批内可能刚好出现 429
		mu.Lock()
		stop := rateLimited
		mu.Unlock()
		if stop {
			<-sem
			logger.Warnf("[engine] %s 来源被限流，本轮跳过剩余 %d 个标识", adapter.Type(), len(identifiers)-i)
			break
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout())
			defer cancel()
			result, err := adapter.Fetch(fetchCtx, id)

			mu.Lock()
			outcomes[id] = fetchOutcome{result: result, err: err}
			if result.Outcome == feed.OutcomeRateLimited {
				rateLimited = true
			}
			mu.Unlock()
		}(id)

		if i < len(identifiers)-1 {
			select {
			case <-time.After(s.cfg.FetchDelay()):
			case <-ctx.Done():
			}
		}
	}
	wg.Wait()
	return outcomes
}
