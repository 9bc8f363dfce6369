// Package delivery 定义消息投递的能力边界。引擎只依赖这里的接口，
// 聊天平台相关的实现细节留在具体投递端里。
package delivery

import "context"

// MessageRef 已投递消息的句柄，状态型来源用它原地编辑旧消息。
type MessageRef string

// Kind 投递失败的分类。
type Kind int

const (
	KindOther Kind = iota
	KindForbidden
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "other"
	}
}

// Error 带分类的投递错误。调度端按 Kind 决定跳过还是重建消息。
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// KindOf 提取投递错误的分类，非投递错误归为 other。
func KindOf(err error) Kind {
	if de, ok := err.(*Error); ok {
		return de.Kind
	}
	return KindOther
}

// Deliverer 把渲染好的通知送达目的地。
type Deliverer interface {
	// Send 投递一条新消息，返回可供后续编辑的消息句柄。
	Send(ctx context.Context, destinationID, content string, mentions []string) (MessageRef, error)
	// Edit 原地改写先前投递的消息。消息已被删除时返回 KindNotFound。
	Edit(ctx context.Context, destinationID string, ref MessageRef, content string) error
}

// MentionResolver 把订阅里存的提及引用解析成投递端可用的提及标记。
// 解析失败（成员已退出等）返回 ok=false，调度端直接丢弃该引用。
type MentionResolver interface {
	Resolve(scopeID, reference string) (string, bool)
}

// ResolverFunc 函数式 MentionResolver。
type ResolverFunc func(scopeID, reference string) (string, bool)

func (f ResolverFunc) Resolve(scopeID, reference string) (string, bool) {
	return f(scopeID, reference)
}
