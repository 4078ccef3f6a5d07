// Package replay 用已记录的模型回复重放一次评测，不访问任何远端服务。
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/dicebench/internal/infra/cache"
	"github.com/John-Robertt/dicebench/internal/model"
)

const Name = "replay"

// ErrNoRecord 表示记录中没有该视频的回复。
var ErrNoRecord = errors.New("没有记录的回复")

type Client struct {
	store   cache.Store
	backend string
	model   string
}

// New 从 store 中读取 backend/model 的回复记录；store 总是按只读打开。
func New(store cache.Store, backend, modelName string) (*Client, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	modelName = strings.TrimSpace(modelName)
	if backend == "" || backend == Name {
		return nil, fmt.Errorf("replay 需要指定被重放的后端（例如 openai）")
	}
	if modelName == "" {
		return nil, fmt.Errorf("replay 需要指定被重放的模型")
	}
	store.ReadOnly = true
	return &Client{store: store, backend: backend, model: modelName}, nil
}

func (c *Client) Name() string { return Name }

// Model 返回被重放的 "<backend>/<model>"，报告据此区分不同来源。
func (c *Client) Model() string { return c.backend + "/" + c.model }

func (c *Client) Supports(model.Mode) bool { return true }

func (c *Client) Offline() bool { return true }

func (c *Client) Predict(ctx context.Context, in model.Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &model.Error{Backend: Name, Stage: model.StageRequest, Err: err}
	}
	reply, ok, err := c.store.ReadReply(c.backend, c.model, in.Key)
	if err != nil {
		return "", &model.Error{Backend: Name, Stage: model.StagePrepare, Err: err}
	}
	if !ok {
		return "", &model.Error{Backend: Name, Stage: model.StagePrepare, Err: fmt.Errorf("%w：%s", ErrNoRecord, in.Key)}
	}
	return reply, nil
}
