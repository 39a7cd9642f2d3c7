package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/internal/realtime/config"
	"github.com/ividrine/tactics-api/pkg/common"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Envelope SNS HTTP 推送体。签名校验在上游做
type Envelope struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
	Token            string `json:"Token,omitempty"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
}

// Publisher 撮合事件原样发到 matchmaking 频道
type Publisher interface {
	PublishMatchEvent(ctx context.Context, raw []byte) error
}

type Handler struct {
	pub            Publisher
	client         *http.Client
	topics         map[string]struct{}
	confirmTimeout time.Duration
}

func New(pub Publisher, c config.WebhookConfig, client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	h := &Handler{
		pub:            pub,
		client:         client,
		topics:         make(map[string]struct{}, len(c.TopicArns)),
		confirmTimeout: c.ConfirmTimeout,
	}
	if h.confirmTimeout <= 0 {
		h.confirmTimeout = 5 * time.Second
	}
	for _, arn := range c.TopicArns {
		h.topics[arn] = struct{}{}
	}
	return h
}

// Matchmaking POST /v1/sns/matchmaking
// SNS 的 Content-Type 是 text/plain，不能用 ShouldBindJSON
func (h *Handler) Matchmaking(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 256<<10))
	if err != nil {
		common.FailFromErr(c, xerr.Wrap(err, xerr.BadRequest, "read body"))
		return
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		common.FailFromErr(c, xerr.Wrap(err, xerr.BadRequest, "invalid sns payload"))
		return
	}
	if len(h.topics) > 0 {
		if _, ok := h.topics[env.TopicArn]; !ok {
			common.FailFromErr(c, xerr.New(xerr.Unauthorized, "unknown topic"))
			return
		}
	}

	switch env.Type {
	case TypeNotification:
		if err := h.pub.PublishMatchEvent(c.Request.Context(), []byte(env.Message)); err != nil {
			common.FailFromErr(c, xerr.Wrap(err, xerr.ServerCommonError, ""))
			return
		}
		logger.Debug(c, "sns notification forwarded", zap.String("message_id", env.MessageID))
	case TypeSubscriptionConfirmation:
		if err := h.confirm(c.Request.Context(), env.SubscribeURL); err != nil {
			common.FailFromErr(c, err)
			return
		}
		logger.Info(c, "sns subscription confirmed", zap.String("topic_arn", env.TopicArn))
	default:
		common.FailFromErr(c, xerr.New(xerr.BadRequest, "Invalid message type"))
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) confirm(ctx context.Context, subscribeURL string) error {
	u, err := url.Parse(subscribeURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return xerr.New(xerr.BadRequest, "invalid SubscribeURL")
	}
	ctx, cancel := context.WithTimeout(ctx, h.confirmTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return xerr.Wrap(err, xerr.BadRequest, "invalid SubscribeURL")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return xerr.Wrap(err, xerr.ServerCommonError, "confirm subscription")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return xerr.Wrap(fmt.Errorf("status %d", resp.StatusCode), xerr.ServerCommonError, "confirm subscription")
	}
	return nil
}
