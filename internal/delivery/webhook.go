package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iabetor/feedbuddy/internal/config"
)

// Webhook 通过 webhook 风格的 HTTP 端点投递消息。
// POST {base}/{destination}?wait=true 发送，PATCH {base}/{destination}/messages/{ref} 编辑。
type Webhook struct {
	cfg    config.DeliveryConfig
	client *http.Client
}

// NewWebhook 创建 webhook 投递端。
func NewWebhook(cfg config.DeliveryConfig) *Webhook {
	return &Webhook{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

type webhookPayload struct {
	Content string `json:"content"`
}

type webhookResponse struct {
	ID string `json:"id"`
}

// Send 投递新消息。提及标记统一拼在正文前面。
func (w *Webhook) Send(ctx context.Context, destinationID, content string, mentions []string) (MessageRef, error) {
	if len(mentions) > 0 {
		content = strings.Join(mentions, " ") + "\n" + content
	}

	endpoint := fmt.Sprintf("%s/%s?wait=true", w.cfg.WebhookBase, destinationID)
	body, err := w.do(ctx, http.MethodPost, endpoint, webhookPayload{Content: content})
	if err != nil {
		return "", err
	}

	var resp webhookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Kind: KindOther, Msg: fmt.Sprintf("解析投递响应失败: %v", err)}
	}
	return MessageRef(resp.ID), nil
}

// Edit 原地改写旧消息。
func (w *Webhook) Edit(ctx context.Context, destinationID string, ref MessageRef, content string) error {
	endpoint := fmt.Sprintf("%s/%s/messages/%s", w.cfg.WebhookBase, destinationID, ref)
	_, err := w.do(ctx, http.MethodPatch, endpoint, webhookPayload{Content: content})
	return err
}

func (w *Webhook) do(ctx context.Context, method, endpoint string, payload webhookPayload) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindOther, Msg: fmt.Sprintf("编码投递负载失败: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, &Error{Kind: KindOther, Msg: fmt.Sprintf("构造投递请求失败: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindOther, Msg: fmt.Sprintf("投递请求失败: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindOther, Msg: fmt.Sprintf("读取投递响应失败: %v", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, &Error{
		Kind: kindForStatus(resp.StatusCode),
		Msg:  fmt.Sprintf("投递端点返回 %d", resp.StatusCode),
	}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindOther
	}
}
