package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUpdates_ParsesMessages(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getUpdates", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `{"ok":true,"result":[{"update_id":11,"message":{"message_id":5,"chat":{"id":-100,"type":"group"},"from":{"id":7,"username":"alice"},"text":"hi","date":1700000000}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	updates, err := c.GetUpdates(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, updates, 1)

	msg := updates[0].Message
	require.NotNil(t, msg)
	require.NotNil(t, msg.Text)
	assert.Equal(t, int64(11), updates[0].UpdateID)
	assert.Equal(t, int64(5), msg.MessageID)
	assert.Equal(t, int64(-100), msg.Chat.ID)
	assert.Equal(t, "alice", msg.From.Name())
	assert.Equal(t, "hi", *msg.Text)
	assert.Contains(t, gotQuery, "offset=42")
}

func TestSendMessage_ReturnsMessageID(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":77,"chat":{"id":7},"date":1700000000}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	id, err := c.SendMessage(context.Background(), 7, "Generating TLDR...")
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
	assert.Equal(t, float64(7), got["chat_id"])
	assert.Equal(t, "Generating TLDR...", got["text"])
}

func TestSendMessage_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":403,"description":"Forbidden: bot can't initiate conversation with a user"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	_, err := c.SendMessage(context.Background(), 7, "x")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
	assert.Contains(t, err.Error(), "can't initiate conversation")
}

func TestEditMessage_NotModifiedIsSuccess(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/editMessageText", r.URL.Path)
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	require.NoError(t, c.EditMessage(context.Background(), 7, 77, "same"))
	assert.Equal(t, 1, calls)
}

func TestEditMessage_TruncatesLongText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	long := strings.Repeat("é", maxMessageChars+50)
	require.NoError(t, c.EditMessage(context.Background(), 7, 77, long))

	text, _ := got["text"].(string)
	assert.Equal(t, maxMessageChars, len([]rune(text)))
	assert.Equal(t, float64(77), got["message_id"])
}
