package feed

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/iabetor/feedbuddy/internal/database"
)

func setupRegistry(t *testing.T, quota int) *Registry {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRegistry(db, quota)
}

func newSub(dest, scope, identifier string) *Subscription {
	return &Subscription{
		DestinationID:    dest,
		OwnerScopeID:     scope,
		SourceType:       SourceWeb,
		SourceIdentifier: identifier,
	}
}

func TestRegistry_CreateAssignsIDAndDefaults(t *testing.T) {
	r := setupRegistry(t, 10)
	ctx := context.Background()

	sub := newSub("chan-1", "guild-1", "https://example.com/feed.xml")
	if err := r.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.ID == "" {
		t.Error("expected assigned ID")
	}
	if sub.Template != SourceWeb.DefaultTemplate() {
		t.Errorf("expected default template, got %q", sub.Template)
	}

	got, err := r.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SourceIdentifier != sub.SourceIdentifier {
		t.Errorf("SourceIdentifier: got %q, want %q", got.SourceIdentifier, sub.SourceIdentifier)
	}
}

func TestRegistry_QuotaExceeded(t *testing.T) {
	r := setupRegistry(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sub := newSub("chan-1", "guild-1", "https://example.com/feed"+string(rune('a'+i))+".xml")
		if err := r.Create(ctx, sub); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	over := newSub("chan-1", "guild-1", "https://example.com/over.xml")
	err := r.Create(ctx, over)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// 超额的订阅不应落库
	subs, err := r.ListByDestination(ctx, "chan-1")
	if err != nil {
		t.Fatalf("ListByDestination: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("expected 2 subscriptions, got %d", len(subs))
	}

	// 其它频道不受影响
	other := newSub("chan-2", "guild-1", "https://example.com/other.xml")
	if err := r.Create(ctx, other); err != nil {
		t.Errorf("Create on other destination: %v", err)
	}
}

func TestRegistry_ScopeQuotaOverride(t *testing.T) {
	r := setupRegistry(t, 1)
	ctx := context.Background()

	if err := r.SetScopeQuota(ctx, "guild-1", 3); err != nil {
		t.Fatalf("SetScopeQuota: %v", err)
	}

	for i := 0; i < 3; i++ {
		sub := newSub("chan-1", "guild-1", "https://example.com/feed"+string(rune('a'+i))+".xml")
		if err := r.Create(ctx, sub); err != nil {
			t.Fatalf("Create %d with override: %v", i, err)
		}
	}

	err := r.Create(ctx, newSub("chan-1", "guild-1", "https://example.com/over.xml"))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded after override limit, got %v", err)
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := setupRegistry(t, 10)
	ctx := context.Background()

	sub := newSub("chan-1", "guild-1", "https://example.com/feed.xml")
	if err := r.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := newSub("chan-1", "guild-1", "https://example.com/feed.xml")
	if err := r.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRegistry_RemoveAndNotFound(t *testing.T) {
	r := setupRegistry(t, 10)
	ctx := context.Background()

	sub := newSub("chan-1", "guild-1", "https://example.com/feed.xml")
	if err := r.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Remove(ctx, sub.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := r.Remove(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
	if _, err := r.Get(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on Get, got %v", err)
	}
}

func TestRegistry_UpdateWatermarkMonotonic(t *testing.T) {
	r := setupRegistry(t, 10)
	ctx := context.Background()

	sub := newSub("chan-1", "guild-1", "https://example.com/feed.xml")
	if err := r.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	if err := r.UpdateWatermark(ctx, sub.ID, Watermark{Time: t2}); err != nil {
		t.Fatalf("UpdateWatermark: %v", err)
	}

	// 回退写入被忽略
	if err := r.UpdateWatermark(ctx, sub.ID, Watermark{Time: t1}); err != nil {
		t.Fatalf("UpdateWatermark backwards: %v", err)
	}

	got, err := r.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Watermark.Time.Equal(t2) {
		t.Errorf("watermark rolled back: got %v, want %v", got.Watermark.Time, t2)
	}
}

func TestRegistry_UpdateWatermarkCrossZone(t *testing.T) {
	r := setupRegistry(t, 10)
	ctx := context.Background()

	sub := newSub("chan-1", "guild-1", "https://example.com/feed.xml")
	if err := r.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 源的发布时间带任意时区偏移；比较必须按时刻而不是按字面
	east := time.FixedZone("UTC+8", 8*3600)
	t1 := time.Date(2026, 2, 19, 8, 0, 0, 0, east)         // 即 00:00 UTC
	t2 := time.Date(2026, 2, 19, 1, 0, 0, 0, time.UTC)     // 晚于 t1 一小时
	t3 := time.Date(2026, 2, 19, 8, 30, 0, 0, east)        // 即 00:30 UTC，早于 t2

	if err := r.UpdateWatermark(ctx, sub.ID, Watermark{Time: t1}); err != nil {
		t.Fatalf("UpdateWatermark t1: %v", err)
	}
	if err := r.UpdateWatermark(ctx, sub.ID, Watermark{Time: t2}); err != nil {
		t.Fatalf("UpdateWatermark t2: %v", err)
	}

	got, err := r.Get(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Watermark.Time.Equal(t2) {
		t.Errorf("later instant in another zone should advance: got %v, want %v", got.Watermark.Time, t2)
	}

	// 换个时区的回退写入同样被忽略
	if err := r.UpdateWatermark(ctx, sub.ID, Watermark{Time: t3}); err != nil {
		t.Fatalf("UpdateWatermark t3: %v", err)
	}
	got, _ = r.Get(ctx, sub.ID)
	if !got.Watermark.Time.Equal(t2) {
		t.Errorf("earlier instant in another zone should be ignored: got %v, want %v", got.Watermark.Time, t2)
	}
}

func TestRegistry_UpdateWatermarkRef(t *testing.T) {
	r := setupRegistry(t, 10)
	ctx := context.Background()

	sub := &Subscription{
		DestinationID:    "chan-1",
		OwnerScopeID:     "guild-1",
		SourceType:       SourceMinecraft,
		SourceIdentifier: "mc.example.com:25565",
	}
	if err := r.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.UpdateWatermark(ctx, sub.ID, Watermark{Ref: "msg-100"}); err != nil {
		t.Fatalf("UpdateWatermark: %v", err)
	}
	got, _ := r.Get(ctx, sub.ID)
	if got.Watermark.Ref != "msg-100" {
		t.Errorf("watermark ref: got %q, want %q", got.Watermark.Ref, "msg-100")
	}

	// 消息引用游标允许替换
	if err := r.UpdateWatermark(ctx, sub.ID, Watermark{Ref: "msg-200"}); err != nil {
		t.Fatalf("UpdateWatermark replace: %v", err)
	}
	got, _ = r.Get(ctx, sub.ID)
	if got.Watermark.Ref != "msg-200" {
		t.Errorf("watermark ref after replace: got %q", got.Watermark.Ref)
	}
}

func TestRegistry_UpdateWatermarkNotFound(t *testing.T) {
	r := setupRegistry(t, 10)
	err := r.UpdateWatermark(context.Background(), "missing", Watermark{Time: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_UpdateTemplateAndMentions(t *testing.T) {
	r := setupRegistry(t, 10)
	ctx := context.Background()

	sub := newSub("chan-1", "guild-1", "https://example.com/feed.xml")
	if err := r.Create(ctx, sub); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.UpdateTemplate(ctx, sub.ID, "自定义: {title}"); err != nil {
		t.Fatalf("UpdateTemplate: %v", err)
	}
	if err := r.UpdateMentions(ctx, sub.ID, []string{"role-1", "role-2"}); err != nil {
		t.Fatalf("UpdateMentions: %v", err)
	}

	got, _ := r.Get(ctx, sub.ID)
	if got.Template != "自定义: {title}" {
		t.Errorf("template: got %q", got.Template)
	}
	if len(got.MentionTargets) != 2 || got.MentionTargets[0] != "role-1" {
		t.Errorf("mention targets: got %v", got.MentionTargets)
	}

	// 空模板恢复默认值
	if err := r.UpdateTemplate(ctx, sub.ID, ""); err != nil {
		t.Fatalf("UpdateTemplate reset: %v", err)
	}
	got, _ = r.Get(ctx, sub.ID)
	if got.Template != SourceWeb.DefaultTemplate() {
		t.Errorf("template after reset: got %q", got.Template)
	}
}

func TestRegistry_ListByOwnerScope(t *testing.T) {
	r := setupRegistry(t, 10)
	ctx := context.Background()

	for i, scope := range []string{"guild-1", "guild-1", "guild-2"} {
		sub := newSub("chan-"+string(rune('a'+i)), scope, "https://example.com/feed.xml")
		if err := r.Create(ctx, sub); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	subs, err := r.ListByOwnerScope(ctx, "guild-1")
	if err != nil {
		t.Fatalf("ListByOwnerScope: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("expected 2 subscriptions for guild-1, got %d", len(subs))
	}

	all, err := r.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 subscriptions in total, got %d", len(all))
	}
}
