package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/dicebench/internal/frames"
	"github.com/John-Robertt/dicebench/internal/model"
)

type fakeConverse struct {
	in    *bedrockruntime.ConverseInput
	reply string
	err   error
}

func (f *fakeConverse) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: f.reply}},
		}},
	}, nil
}

type statusErr struct{ code int }

func (e statusErr) Error() string       { return "throttled" }
func (e statusErr) HTTPStatusCode() int { return e.code }

func TestPredict_VideoMode(t *testing.T) {
	fake := &fakeConverse{reply: "2"}
	c := NewWithAPI(fake, Config{})

	reply, err := c.Predict(context.Background(), model.Input{
		Video: &model.Video{Data: []byte("webm-bytes"), Format: "webm"},
	})
	require.NoError(t, err)
	require.Equal(t, "2", reply)

	in := fake.in
	require.Equal(t, DefaultModel, aws.ToString(in.ModelId))
	require.InDelta(t, 0.3, aws.ToFloat32(in.InferenceConfig.Temperature), 1e-6)
	require.Equal(t, int32(300), aws.ToInt32(in.InferenceConfig.MaxTokens))
	require.Len(t, in.Messages, 1)

	content := in.Messages[0].Content
	require.Len(t, content, 2)
	v, ok := content[0].(*types.ContentBlockMemberVideo)
	require.True(t, ok, "第一个内容块应为视频，实际 %T", content[0])
	require.Equal(t, types.VideoFormatWebm, v.Value.Format)
	src, ok := v.Value.Source.(*types.VideoSourceMemberBytes)
	require.True(t, ok)
	require.Equal(t, []byte("webm-bytes"), src.Value)

	txt, ok := content[1].(*types.ContentBlockMemberText)
	require.True(t, ok)
	require.Equal(t, model.DefaultPrompt, txt.Value)
}

func TestPredict_FramesMode(t *testing.T) {
	fake := &fakeConverse{reply: "5"}
	c := NewWithAPI(fake, Config{Model: "us.amazon.nova-lite-v1:0"})

	_, err := c.Predict(context.Background(), model.Input{
		Frames: []frames.Frame{{JPEG: []byte("a")}, {JPEG: []byte("b")}, {JPEG: []byte("c")}},
	})
	require.NoError(t, err)
	require.Equal(t, "us.amazon.nova-lite-v1:0", aws.ToString(fake.in.ModelId))

	content := fake.in.Messages[0].Content
	require.Len(t, content, 4)
	for _, b := range content[:3] {
		img, ok := b.(*types.ContentBlockMemberImage)
		require.True(t, ok)
		require.Equal(t, types.ImageFormatJpeg, img.Value.Format)
	}
}

func TestPredict_Errors(t *testing.T) {
	c := NewWithAPI(&fakeConverse{err: statusErr{code: 429}}, Config{})
	_, err := c.Predict(context.Background(), model.Input{Video: &model.Video{Data: []byte("x"), Format: ".webm"}})
	var hs *model.HTTPStatusError
	require.True(t, errors.As(err, &hs))
	require.Equal(t, 429, hs.StatusCode)

	_, err = c.Predict(context.Background(), model.Input{Video: &model.Video{Data: []byte("x"), Format: "avi"}})
	var me *model.Error
	require.True(t, errors.As(err, &me))
	require.Equal(t, model.StagePrepare, me.Stage)

	_, err = c.Predict(context.Background(), model.Input{})
	require.Error(t, err)

	c = NewWithAPI(&fakeConverse{reply: " "}, Config{})
	_, err = c.Predict(context.Background(), model.Input{Video: &model.Video{Data: []byte("x"), Format: "mp4"}})
	require.ErrorIs(t, err, model.ErrEmptyReply)
}

func TestVideoFormat(t *testing.T) {
	cases := map[string]types.VideoFormat{
		"webm":  types.VideoFormatWebm,
		".WEBM": types.VideoFormatWebm,
		"mp4":   types.VideoFormatMp4,
		"mov":   types.VideoFormatMov,
		"mkv":   types.VideoFormatMkv,
		"3gp":   types.VideoFormatThreeGp,
	}
	for in, want := range cases {
		got, err := VideoFormat(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := VideoFormat("gif")
	require.Error(t, err)
}
