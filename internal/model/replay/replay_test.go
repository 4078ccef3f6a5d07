package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/dicebench/internal/infra/cache"
	"github.com/John-Robertt/dicebench/internal/model"
)

func TestPredict_ReadsRecordedReply(t *testing.T) {
	store := cache.New(t.TempDir(), false)
	require.NoError(t, store.WriteReply("openai", "gpt-4o", "TV3.webm", "I think 2"))

	c, err := New(store, "OpenAI", "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "openai/gpt-4o", c.Model())
	require.False(t, model.NeedsMedia(c))

	reply, err := c.Predict(context.Background(), model.Input{Key: "TV3.webm"})
	require.NoError(t, err)
	require.Equal(t, "I think 2", reply)

	_, err = c.Predict(context.Background(), model.Input{Key: "S9.webm"})
	require.ErrorIs(t, err, ErrNoRecord)
	var me *model.Error
	require.True(t, errors.As(err, &me))
	require.Equal(t, Name, me.Backend)
}

func TestNew_Validation(t *testing.T) {
	store := cache.New(t.TempDir(), false)
	_, err := New(store, "", "gpt-4o")
	require.Error(t, err)
	_, err = New(store, "replay", "gpt-4o")
	require.Error(t, err)
	_, err = New(store, "openai", "")
	require.Error(t, err)
}
