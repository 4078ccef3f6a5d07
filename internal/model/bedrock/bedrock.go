// Package bedrock 通过 AWS Bedrock Converse 接口预测骰子点数。
//
// video 模式直接发送原始视频字节；frames 模式发送抽取的 JPEG 帧。
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/John-Robertt/dicebench/internal/model"
)

const (
	Name          = "bedrock"
	DefaultModel  = "us.amazon.nova-pro-v1:0"
	DefaultRegion = "us-east-1"
)

// ConverseAPI 是 bedrockruntime.Client 中被用到的子集。
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type Config struct {
	Region      string
	Model       string
	Temperature float32
	MaxTokens   int32
}

type Client struct {
	api         ConverseAPI
	model       string
	temperature float32
	maxTokens   int32
}

// New 使用默认凭证链（环境变量、共享配置、实例角色）构造客户端。
func New(ctx context.Context, cfg Config) (*Client, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = DefaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败：%w", err)
	}
	return NewWithAPI(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func NewWithAPI(api ConverseAPI, cfg Config) *Client {
	c := &Client{
		api:         api,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.temperature <= 0 {
		c.temperature = 0.3
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 300
	}
	return c
}

func (c *Client) Name() string  { return Name }
func (c *Client) Model() string { return c.model }

func (c *Client) Supports(m model.Mode) bool {
	return m == model.ModeFrames || m == model.ModeVideo
}

func (c *Client) Predict(ctx context.Context, in model.Input) (string, error) {
	media, err := mediaBlocks(in)
	if err != nil {
		return "", &model.Error{Backend: Name, Stage: model.StagePrepare, Err: err}
	}

	content := append(media, &types.ContentBlockMemberText{Value: in.PromptOrDefault()})
	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: content},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(c.temperature),
			MaxTokens:   aws.Int32(c.maxTokens),
		},
	})
	if err != nil {
		return "", &model.Error{Backend: Name, Stage: model.StageRequest, Err: statusError(err)}
	}

	reply := replyText(out)
	if strings.TrimSpace(reply) == "" {
		return "", &model.Error{Backend: Name, Stage: model.StageReply, Err: model.ErrEmptyReply}
	}
	return reply, nil
}

func mediaBlocks(in model.Input) ([]types.ContentBlock, error) {
	if in.Video != nil {
		if len(in.Video.Data) == 0 {
			return nil, errors.New("视频内容为空")
		}
		f, err := VideoFormat(in.Video.Format)
		if err != nil {
			return nil, err
		}
		return []types.ContentBlock{
			&types.ContentBlockMemberVideo{Value: types.VideoBlock{
				Format: f,
				Source: &types.VideoSourceMemberBytes{Value: in.Video.Data},
			}},
		}, nil
	}

	if len(in.Frames) == 0 {
		return nil, errors.New("没有可发送的帧或视频")
	}
	out := make([]types.ContentBlock, 0, len(in.Frames))
	for _, f := range in.Frames {
		out = append(out, &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: types.ImageFormatJpeg,
			Source: &types.ImageSourceMemberBytes{Value: f.JPEG},
		}})
	}
	return out, nil
}

// VideoFormat 把文件扩展名（带或不带点）映射为 Bedrock 支持的视频容器格式。
func VideoFormat(ext string) (types.VideoFormat, error) {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	switch ext {
	case "webm":
		return types.VideoFormatWebm, nil
	case "mp4", "m4v":
		return types.VideoFormatMp4, nil
	case "mov":
		return types.VideoFormatMov, nil
	case "mkv":
		return types.VideoFormatMkv, nil
	case "flv":
		return types.VideoFormatFlv, nil
	case "mpeg":
		return types.VideoFormatMpeg, nil
	case "mpg":
		return types.VideoFormatMpg, nil
	case "wmv":
		return types.VideoFormatWmv, nil
	case "3gp":
		return types.VideoFormatThreeGp, nil
	default:
		return "", fmt.Errorf("不支持的视频格式：%q", ext)
	}
}

func replyText(out *bedrockruntime.ConverseOutput) string {
	if out == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, b := range msg.Value.Content {
		if t, ok := b.(*types.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}
	return sb.String()
}

// statusError 从 smithy 的 ResponseError 中提取 HTTP 状态码。
func statusError(err error) error {
	var rs interface{ HTTPStatusCode() int }
	if errors.As(err, &rs) && rs.HTTPStatusCode() != 0 {
		return &model.HTTPStatusError{StatusCode: rs.HTTPStatusCode(), Message: err.Error()}
	}
	return err
}
