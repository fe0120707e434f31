package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBot_Alert(t *testing.T) {
	var gotChat, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	bot := NewBot("token", "42")
	bot.baseURL = server.URL

	require.NoError(t, bot.Alert(context.Background(), "reaper failed"))
	assert.Equal(t, "42", gotChat)
	assert.Equal(t, "reaper failed", gotText)
}

func TestBot_SendMessageError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	bot := NewBot("bad", "42")
	bot.baseURL = server.URL

	err := bot.SendMessage(context.Background(), "42", "hi")
	assert.ErrorContains(t, err, "telegram API error")
}
