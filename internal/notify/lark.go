package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Lark sends direct messages through the Feishu/Lark IM API, addressing
// users by open id.
type Lark struct {
	client *lark.Client
}

// NewLark creates a Lark sender. baseURL overrides the open platform
// endpoint and may be empty.
func NewLark(appID, appSecret, baseURL string, timeout time.Duration) *Lark {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelError),
		lark.WithEnableTokenCache(true),
	}
	if baseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, lark.WithReqTimeout(timeout))
	}
	return &Lark{client: lark.NewClient(appID, appSecret, opts...)}
}

// SendText implements DirectSender.
func (l *Lark) SendText(ctx context.Context, openID, text string) error {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode message content: %w", err)
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeOpenId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType(larkim.MsgTypeText).
			Content(string(content)).
			Uuid(uuid.NewString()).
			Build()).
		Build()

	resp, err := l.client.Im.V1.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send lark message: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send lark message: code %d: %s (request %s)", resp.Code, resp.Msg, resp.RequestId())
	}
	return nil
}
