// Package openai 通过 OpenAI 兼容的 chat completions 接口预测骰子点数。
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/John-Robertt/dicebench/internal/model"
)

const (
	Name         = "openai"
	DefaultModel = "gpt-4o"

	defaultMaxTokens   = 300
	defaultTemperature = 0.3
)

// Config 是 openai 后端的构造参数。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Detail 是图片细节级别（low|high|auto），为空时使用 low。
	Detail      string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
}

// Client 实现 model.Model；只支持 frames 模式。
type Client struct {
	cli         *goopenai.Client
	model       string
	detail      goopenai.ImageURLDetail
	maxTokens   int
	temperature float32
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY 不能为空")
	}

	cc := goopenai.DefaultConfig(cfg.APIKey)
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		cc.BaseURL = strings.TrimRight(u, "/")
	}
	if cfg.HTTPClient != nil {
		cc.HTTPClient = cfg.HTTPClient
	}

	detail, err := parseDetail(cfg.Detail)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cli:         goopenai.NewClientWithConfig(cc),
		model:       strings.TrimSpace(cfg.Model),
		detail:      detail,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.temperature <= 0 {
		c.temperature = defaultTemperature
	}
	return c, nil
}

func parseDetail(s string) (goopenai.ImageURLDetail, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low":
		return goopenai.ImageURLDetailLow, nil
	case "high":
		return goopenai.ImageURLDetailHigh, nil
	case "auto":
		return goopenai.ImageURLDetailAuto, nil
	default:
		return "", fmt.Errorf("未知 image detail：%q（可选 low|high|auto）", s)
	}
}

func (c *Client) Name() string  { return Name }
func (c *Client) Model() string { return c.model }

func (c *Client) Supports(m model.Mode) bool { return m == model.ModeFrames }

func (c *Client) Predict(ctx context.Context, in model.Input) (string, error) {
	if len(in.Frames) == 0 {
		return "", &model.Error{Backend: Name, Stage: model.StagePrepare, Err: errors.New("没有可发送的帧")}
	}

	parts := make([]goopenai.ChatMessagePart, 0, len(in.Frames)+1)
	parts = append(parts, goopenai.ChatMessagePart{
		Type: goopenai.ChatMessagePartTypeText,
		Text: in.PromptOrDefault(),
	})
	for _, f := range in.Frames {
		parts = append(parts, goopenai.ChatMessagePart{
			Type: goopenai.ChatMessagePartTypeImageURL,
			ImageURL: &goopenai.ChatMessageImageURL{
				URL:    f.DataURL(),
				Detail: c.detail,
			},
		})
	}

	req := goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:         goopenai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	resp, err := c.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &model.Error{Backend: Name, Stage: model.StageRequest, Err: statusError(err)}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &model.Error{Backend: Name, Stage: model.StageReply, Err: model.ErrEmptyReply}
	}
	return resp.Choices[0].Message.Content, nil
}

// statusError 把 SDK 的错误统一为 model.HTTPStatusError，便于上层分类。
func statusError(err error) error {
	var ae *goopenai.APIError
	if errors.As(err, &ae) && ae.HTTPStatusCode != 0 {
		return &model.HTTPStatusError{StatusCode: ae.HTTPStatusCode, Message: ae.Message}
	}
	var re *goopenai.RequestError
	if errors.As(err, &re) && re.HTTPStatusCode != 0 {
		msg := ""
		if re.Err != nil {
			msg = re.Err.Error()
		}
		return &model.HTTPStatusError{StatusCode: re.HTTPStatusCode, Message: msg}
	}
	return err
}
