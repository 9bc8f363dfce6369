package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/iabetor/feedbuddy/internal/database"
	"github.com/iabetor/feedbuddy/internal/logger"
)

const subscriptionColumns = `id, destination_id, owner_scope_id, source_type, source_identifier,
	template, mention_targets, watermark_time, watermark_ref, created_at, updated_at`

// Registry 订阅注册表，唯一的订阅状态持有者。
// 游标写入是每个订阅唯一的变更点，按订阅 ID 行级更新，互不相关的订阅不会互相阻塞。
type Registry struct {
	db           *database.DB
	defaultQuota int
}

// NewRegistry 创建订阅注册表。
// defaultQuota: 每个目标频道的默认订阅数上限，可被归属域覆盖。
func NewRegistry(db *database.DB, defaultQuota int) *Registry {
	if defaultQuota <= 0 {
		defaultQuota = 10
	}
	return &Registry{db: db, defaultQuota: defaultQuota}
}

// Create 创建订阅并分配 ID。
// 同一目标频道的订阅数达到配额上限时返回 ErrQuotaExceeded，
// 重复的 (目标, 来源) 组合返回 ErrDuplicate。
func (r *Registry) Create(ctx context.Context, sub *Subscription) error {
	if !sub.SourceType.Valid() {
		return fmt.Errorf("创建订阅失败: 未知的来源类型 %q", sub.SourceType)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Template == "" {
		sub.Template = sub.SourceType.DefaultTemplate()
	}

	mentions, err := json.Marshal(sub.MentionTargets)
	if err != nil {
		return fmt.Errorf("序列化提及目标失败: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	// 配额检查和插入在同一事务内完成
	quota := r.quotaForScope(ctx, tx, sub.OwnerScopeID)
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE destination_id = ?`,
		sub.DestinationID).Scan(&count); err != nil {
		return fmt.Errorf("统计订阅数失败: %w", err)
	}
	if count >= quota {
		return fmt.Errorf("%w: 目标频道 %s 已有 %d 个订阅", ErrQuotaExceeded, sub.DestinationID, count)
	}

	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	_, err = tx.ExecContext(ctx,
		`INSERT INTO subscriptions (id, destination_id, owner_scope_id, source_type, source_identifier,
			template, mention_targets, watermark_time, watermark_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.DestinationID, sub.OwnerScopeID, string(sub.SourceType), sub.SourceIdentifier,
		sub.Template, string(mentions), nullTime(sub.Watermark.Time), sub.Watermark.Ref, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, sub.SourceType, sub.SourceIdentifier)
		}
		return fmt.Errorf("插入订阅失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	logger.Infof("[registry] 新订阅 %s: %s/%s -> %s", sub.ID, sub.SourceType, sub.SourceIdentifier, sub.DestinationID)
	return nil
}

// Get 按 ID 获取订阅。
func (r *Registry) Get(ctx context.Context, id string) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sub, err
}

// Remove 删除订阅。
func (r *Registry) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除订阅失败: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	logger.Infof("[registry] 已删除订阅 %s", id)
	return nil
}

// ListAll 列出全部订阅，供全局轮询使用。
func (r *Registry) ListAll(ctx context.Context) ([]*Subscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at`)
}

// ListByOwnerScope 列出某个归属域的全部订阅。
func (r *Registry) ListByOwnerScope(ctx context.Context, scopeID string) ([]*Subscription, error) {
	return r.list(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE owner_scope_id = ? ORDER BY created_at`,
		scopeID)
}

// ListByDestination 列出某个目标频道的全部订阅。
func (r *Registry) ListByDestination(ctx context.Context, destinationID string) ([]*Subscription, error) {
	return r.list(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE destination_id = ? ORDER BY created_at`,
		destinationID)
}

// UpdateWatermark 推进订阅游标。
// 游标只会前进：时间游标早于已存储值时写入被忽略；消息引用游标允许替换。
// SQLite 写冲突（database is locked）按指数退避重试，超过上限返回错误。
func (r *Registry) UpdateWatermark(ctx context.Context, id string, mark Watermark) error {
	op := func() error {
		res, err := r.db.ExecContext(ctx,
			`UPDATE subscriptions
			SET watermark_time = CASE
					WHEN ? IS NULL THEN watermark_time
					WHEN watermark_time IS NULL OR watermark_time < ? THEN ?
					ELSE watermark_time
				END,
				watermark_ref = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			nullTime(mark.Time), nullTime(mark.Time), nullTime(mark.Time), mark.Ref, id)
		if err != nil {
			if isBusy(err) {
				return err // 可重试
			}
			return backoff.Permanent(err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, id))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("推进游标失败: %w", err)
	}
	return nil
}

// UpdateTemplate 更新消息模板，空串恢复该来源类型的默认模板。
func (r *Registry) UpdateTemplate(ctx context.Context, id string, template string) error {
	if template == "" {
		sub, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		template = sub.SourceType.DefaultTemplate()
	}
	return r.updateField(ctx, id, `template`, template)
}

// UpdateMentions 更新提及目标列表。
func (r *Registry) UpdateMentions(ctx context.Context, id string, targets []string) error {
	if targets == nil {
		targets = []string{}
	}
	data, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("序列化提及目标失败: %w", err)
	}
	return r.updateField(ctx, id, `mention_targets`, string(data))
}

// SetScopeQuota 设置归属域的订阅配额覆盖，max <= 0 时清除覆盖恢复默认值。
func (r *Registry) SetScopeQuota(ctx context.Context, scopeID string, max int) error {
	if max <= 0 {
		_, err := r.db.ExecContext(ctx, `DELETE FROM scope_quotas WHERE scope_id = ?`, scopeID)
		if err != nil {
			return fmt.Errorf("清除配额覆盖失败: %w", err)
		}
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scope_quotas (scope_id, max_subscriptions) VALUES (?, ?)
		ON CONFLICT(scope_id) DO UPDATE SET max_subscriptions = excluded.max_subscriptions,
			updated_at = CURRENT_TIMESTAMP`,
		scopeID, max)
	if err != nil {
		return fmt.Errorf("设置配额覆盖失败: %w", err)
	}
	return nil
}

func (r *Registry) updateField(ctx context.Context, id, column, value string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET `+column+` = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		value, id)
	if err != nil {
		return fmt.Errorf("更新订阅失败: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *Registry) list(ctx context.Context, query string, args ...interface{}) ([]*Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询订阅失败: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// quotaForScope 查询归属域的配额覆盖，没有覆盖时返回默认值。
func (r *Registry) quotaForScope(ctx context.Context, tx *sql.Tx, scopeID string) int {
	var quota int
	err := tx.QueryRowContext(ctx,
		`SELECT max_subscriptions FROM scope_quotas WHERE scope_id = ?`, scopeID).Scan(&quota)
	if err != nil || quota <= 0 {
		return r.defaultQuota
	}
	return quota
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub        Subscription
		sourceType string
		mentions   string
		markTime   sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.DestinationID, &sub.OwnerScopeID, &sourceType, &sub.SourceIdentifier,
		&sub.Template, &mentions, &markTime, &sub.Watermark.Ref, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.SourceType = SourceType(sourceType)
	if markTime.Valid {
		sub.Watermark.Time = markTime.Time
	}
	if err := json.Unmarshal([]byte(mentions), &sub.MentionTargets); err != nil {
		// 提及目标损坏不致命，置空并记录
		logger.Warnf("[registry] 订阅 %s 的提及目标解析失败: %v", sub.ID, err)
		sub.MentionTargets = nil
	}
	return &sub, nil
}

// nullTime 统一转成 UTC 再落库。watermark_time 的单调性守卫按存储文本比较大小，
// 源的发布时间带任意时区偏移，不归一会把更晚的时间比成更早。
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

func isBusy(err error) bool {
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}
