package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/dicebench/internal/frames"
	"github.com/John-Robertt/dicebench/internal/model"
)

type capturedRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL struct {
				URL    string `json:"url"`
				Detail string `json:"detail"`
			} `json:"image_url"`
		} `json:"content"`
	} `json:"messages"`
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return c
}

func testFrames() []frames.Frame {
	return []frames.Frame{
		{Seq: 0, JPEG: []byte{0xff, 0xd8, 0x01}},
		{Seq: 1, SourceIndex: 30, JPEG: []byte{0xff, 0xd8, 0x02}},
	}
}

func TestPredict_SendsPromptAndImageParts(t *testing.T) {
	var (
		got        capturedRequest
		path, auth string
		decodeErr  error
	)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		path, auth = r.URL.Path, r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		decodeErr = json.Unmarshal(b, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion(" 4\n"))
	})

	reply, err := c.Predict(context.Background(), model.Input{Frames: testFrames()})
	require.NoError(t, err)
	require.Equal(t, " 4\n", reply)
	require.NoError(t, decodeErr)
	require.Equal(t, "/v1/chat/completions", path)
	require.Equal(t, "Bearer sk-test", auth)

	require.Equal(t, DefaultModel, got.Model)
	require.Equal(t, 300, got.MaxTokens)
	require.InDelta(t, 0.3, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "user", got.Messages[0].Role)

	parts := got.Messages[0].Content
	require.Len(t, parts, 3)
	require.Equal(t, "text", parts[0].Type)
	require.Equal(t, model.DefaultPrompt, parts[0].Text)
	for i, p := range parts[1:] {
		require.Equal(t, "image_url", p.Type)
		require.Equal(t, "low", p.ImageURL.Detail)
		require.Equal(t, testFrames()[i].DataURL(), p.ImageURL.URL)
	}
}

func TestPredict_StatusErrorIsClassified(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := c.Predict(context.Background(), model.Input{Frames: testFrames()})
	require.Error(t, err)

	var me *model.Error
	require.True(t, errors.As(err, &me))
	require.Equal(t, Name, me.Backend)
	require.Equal(t, model.StageRequest, me.Stage)

	var hs *model.HTTPStatusError
	require.True(t, errors.As(err, &hs))
	require.Equal(t, http.StatusUnauthorized, hs.StatusCode)
	require.True(t, strings.Contains(model.Humanize(err), "认证失败"))
}

func TestPredict_EmptyReply(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("  "))
	})
	_, err := c.Predict(context.Background(), model.Input{Frames: testFrames()})
	require.ErrorIs(t, err, model.ErrEmptyReply)
}

func TestPredict_RequiresFrames(t *testing.T) {
	c, err := New(Config{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	require.False(t, c.Supports(model.ModeVideo))
	require.True(t, c.Supports(model.ModeFrames))

	_, err = c.Predict(context.Background(), model.Input{})
	var me *model.Error
	require.True(t, errors.As(err, &me))
	require.Equal(t, model.StagePrepare, me.Stage)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{APIKey: "k", Detail: "ultra"})
	require.Error(t, err)

	c, err := New(Config{APIKey: "k", Model: "gpt-4o-mini", Detail: "HIGH"})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", c.Model())
}
