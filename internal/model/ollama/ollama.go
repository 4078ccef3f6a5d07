// Package ollama 通过本地 Ollama 的 /api/generate 接口预测骰子点数。
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/John-Robertt/dicebench/internal/model"
)

const (
	Name         = "ollama"
	DefaultHost  = "http://127.0.0.1:11434"
	DefaultModel = "llava"
)

type Config struct {
	Host        string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// Client 实现 model.Model；只支持 frames 模式。
type Client struct {
	api     *api.Client
	model   string
	options map[string]any
}

func New(cfg Config) (*Client, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = DefaultHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("OLLAMA_HOST 无效：%w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("OLLAMA_HOST 无效：%q", cfg.Host)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.3
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}

	c := &Client{
		api:   api.NewClient(u, hc),
		model: strings.TrimSpace(cfg.Model),
		options: map[string]any{
			"temperature": temp,
			"num_predict": maxTokens,
		},
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	return c, nil
}

func (c *Client) Name() string  { return Name }
func (c *Client) Model() string { return c.model }

func (c *Client) Supports(m model.Mode) bool { return m == model.ModeFrames }

func (c *Client) Predict(ctx context.Context, in model.Input) (string, error) {
	if len(in.Frames) == 0 {
		return "", &model.Error{Backend: Name, Stage: model.StagePrepare, Err: errors.New("没有可发送的帧")}
	}

	images := make([]api.ImageData, 0, len(in.Frames))
	for _, f := range in.Frames {
		images = append(images, api.ImageData(f.JPEG))
	}

	stream := false
	req := &api.GenerateRequest{
		Model:   c.model,
		Prompt:  in.PromptOrDefault(),
		Images:  images,
		Stream:  &stream,
		Options: c.options,
	}

	var sb strings.Builder
	err := c.api.Generate(ctx, req, func(r api.GenerateResponse) error {
		sb.WriteString(r.Response)
		return nil
	})
	if err != nil {
		return "", &model.Error{Backend: Name, Stage: model.StageRequest, Err: statusError(err)}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", &model.Error{Backend: Name, Stage: model.StageReply, Err: model.ErrEmptyReply}
	}
	return sb.String(), nil
}

func statusError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		return &model.HTTPStatusError{StatusCode: se.StatusCode, Message: se.ErrorMessage}
	}
	return err
}
