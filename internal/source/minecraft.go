package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iabetor/feedbuddy/internal/config"
	"github.com/iabetor/feedbuddy/internal/feed"
	"github.com/iabetor/feedbuddy/internal/logger"
)

// Minecraft 服务器状态适配器。状态型来源：每次轮询产生单条"当前状态"条目，
// 由投递端原地编辑上一条状态消息，而不是每个周期追加新消息。
type Minecraft struct {
	cfg    config.MinecraftConfig
	client *http.Client
}

// NewMinecraft 创建 Minecraft 状态适配器。
func NewMinecraft(cfg config.MinecraftConfig, client *http.Client) *Minecraft {
	return &Minecraft{cfg: cfg, client: client}
}

func (m *Minecraft) Type() feed.SourceType { return feed.SourceMinecraft }

// Recognize 接受 "mc:host[:port]" 前缀形式或裸的 host:port 形式。
func (m *Minecraft) Recognize(raw string) (string, bool) {
	if addr, ok := strings.CutPrefix(raw, "mc:"); ok {
		if addr != "" && !strings.Contains(addr, "/") {
			return addr, true
		}
		return "", false
	}

	// host:port 且端口为数字，才认为是服务器地址
	host, port, err := net.SplitHostPort(raw)
	if err != nil || host == "" {
		return "", false
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", false
	}
	return raw, true
}

// mcsrvstatResponse 主状态接口的响应（字段子集）。
type mcsrvstatResponse struct {
	Online  bool   `json:"online"`
	Version string `json:"version"`
	Players struct {
		Online int `json:"online"`
		Max    int `json:"max"`
	} `json:"players"`
	Motd struct {
		Clean []string `json:"clean"`
	} `json:"motd"`
}

// mcapiResponse 备用状态接口的响应（字段子集）。
type mcapiResponse struct {
	Online  bool `json:"online"`
	Players struct {
		Now int `json:"now"`
		Max int `json:"max"`
	} `json:"players"`
	Server struct {
		Name string `json:"name"`
	} `json:"server"`
}

// Fetch 两级状态查询：主接口失败或超时后尝试备用接口，都失败才算不可用。
func (m *Minecraft) Fetch(ctx context.Context, identifier string) (feed.PollResult, error) {
	status, err := m.fetchPrimary(ctx, identifier)
	if err != nil {
		logger.Debugf("[minecraft] 主接口查询 %s 失败，尝试备用接口: %v", identifier, err)
		status, err = m.fetchFallback(ctx, identifier)
		if err != nil {
			return failResult(err), err
		}
	}

	return feed.PollResult{
		Outcome: feed.OutcomeOK,
		Items:   []feed.Item{status},
	}, nil
}

func (m *Minecraft) fetchPrimary(ctx context.Context, addr string) (feed.Item, error) {
	body, err := httpGet(ctx, m.client, m.cfg.StatusAPIBase+"/"+addr, nil)
	if err != nil {
		return feed.Item{}, err
	}

	var resp mcsrvstatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return feed.Item{}, fmt.Errorf("%w: 解析状态失败: %v", feed.ErrSourceInvalid, err)
	}

	return m.statusItem(addr, resp.Online, resp.Players.Online, resp.Players.Max, resp.Version), nil
}

func (m *Minecraft) fetchFallback(ctx context.Context, addr string) (feed.Item, error) {
	host, port := splitServerAddr(addr)
	endpoint := fmt.Sprintf("%s?ip=%s&port=%s", m.cfg.FallbackAPIBase, host, port)
	body, err := httpGet(ctx, m.client, endpoint, nil)
	if err != nil {
		return feed.Item{}, err
	}

	var resp mcapiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return feed.Item{}, fmt.Errorf("%w: 解析状态失败: %v", feed.ErrSourceInvalid, err)
	}

	return m.statusItem(addr, resp.Online, resp.Players.Now, resp.Players.Max, resp.Server.Name), nil
}

// statusItem 格式化单条"当前状态"条目。
func (m *Minecraft) statusItem(addr string, online bool, players, max int, version string) feed.Item {
	title := fmt.Sprintf("服务器 %s 当前离线", addr)
	if online {
		title = fmt.Sprintf("服务器 %s 在线: %d/%d 玩家", addr, players, max)
		if version != "" {
			title += " · " + version
		}
	}
	return feed.Item{
		SourceType:  feed.SourceMinecraft,
		Title:       title,
		Author:      addr,
		PublishedAt: time.Now(),
	}
}

// splitServerAddr 拆分服务器地址，端口缺省为 25565。
func splitServerAddr(addr string) (host, port string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, "25565"
	}
	return host, port
}
