package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBroadcaster struct {
	got []Notification
	err error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, n Notification) error {
	f.got = append(f.got, n)
	return f.err
}

type fakeDirect struct {
	to, text string
	calls    int
	err      error
}

func (f *fakeDirect) SendText(_ context.Context, to, text string) error {
	f.calls++
	f.to, f.text = to, text
	return f.err
}

func TestNotify_BothChannels(t *testing.T) {
	b, d := &fakeBroadcaster{}, &fakeDirect{}
	out := New(b, d, nil).Notify(context.Background(), Notification{
		User:        "a@x.com",
		MessagingID: "ou_1",
		Link:        "https://x/pr/1",
		Text:        "please review",
	})
	assert.True(t, out.Broadcast)
	assert.True(t, out.Direct)
	require.Len(t, b.got, 1)
	assert.False(t, b.got[0].Timestamp.IsZero(), "timestamp defaulted")
	assert.Equal(t, "ou_1", d.to)
	assert.Equal(t, "please review", d.text)
}

func TestNotify_MissingMessagingIDSkipsDirectOnly(t *testing.T) {
	b, d := &fakeBroadcaster{}, &fakeDirect{}
	out := New(b, d, nil).Notify(context.Background(), Notification{User: "unassigned", Link: "l"})
	assert.True(t, out.Broadcast)
	assert.False(t, out.Direct)
	assert.Equal(t, 0, d.calls)
}

func TestNotify_FailuresAreLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := &fakeBroadcaster{err: errors.New("503")}
	d := &fakeDirect{err: errors.New("bot not in chat")}

	out := New(b, d, zap.New(core)).Notify(context.Background(), Notification{MessagingID: "ou_1", Link: "l"})
	assert.False(t, out.Broadcast)
	assert.False(t, out.Direct)
	assert.EqualError(t, out.BroadcastErr, "503")
	assert.EqualError(t, out.DirectErr, "bot not in chat")
	assert.Equal(t, 1, d.calls, "direct message still attempted after broadcast failure")
	assert.Equal(t, 2, logs.Len())
}

func TestNotify_NilChannels(t *testing.T) {
	out := New(nil, nil, nil).Notify(context.Background(), Notification{MessagingID: "ou_1"})
	assert.Equal(t, Outcome{}, out)
}

func TestWebhook_Broadcast(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := NewWebhook(srv.URL, time.Second).Broadcast(context.Background(), Notification{
		User:               "a@x.com",
		Link:               "https://x/pr/1",
		EffortMinutes:      5,
		TotalEffortMinutes: 125,
		Timestamp:          ts,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"user":               "a@x.com",
		"link":               "https://x/pr/1",
		"effortMinutes":      float64(5),
		"totalEffortMinutes": float64(125),
		"timestamp":          "2024-01-02T03:04:05Z",
	}, got)
}

func TestWebhook_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, time.Second).Broadcast(context.Background(), Notification{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestLark_SendText(t *testing.T) {
	var mu sync.Mutex
	var body map[string]any
	var receiveType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "tenant_access_token"):
			_, _ = io.WriteString(w, `{"code":0,"msg":"ok","tenant_access_token":"t-test","expire":7200}`)
		case strings.HasSuffix(r.URL.Path, "/im/v1/messages"):
			mu.Lock()
			receiveType = r.URL.Query().Get("receive_id_type")
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Unlock()
			_, _ = io.WriteString(w, `{"code":0,"msg":"success","data":{"message_id":"om_1"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	l := NewLark("cli_app", "secret", srv.URL, 5*time.Second)
	require.NoError(t, l.SendText(context.Background(), "ou_1", "hello\nhttps://x/pr/1"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "open_id", receiveType)
	assert.Equal(t, "ou_1", body["receive_id"])
	assert.Equal(t, "text", body["msg_type"])
	assert.JSONEq(t, `{"text":"hello\nhttps://x/pr/1"}`, body["content"].(string))
	assert.NotEmpty(t, body["uuid"])
}
