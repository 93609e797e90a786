package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/trigger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var vibratePattern = []int{200, 100, 200}

type Subscription struct {
	Endpoint string `json:"endpoint" koanf:"endpoint" validate:"required,url"`
	Auth     string `json:"auth" koanf:"auth" validate:"required"`
	P256dh   string `json:"p256dh" koanf:"p256dh" validate:"required"`
}

type WebPushOptions struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
	Subscriptions   []Subscription
	HTTPClient      webpush.HTTPClient
	Logger          *zap.SugaredLogger
}

// WebPush delivers intents to browser push subscriptions. A subscription the
// push service reports as gone (404/410) is dropped.
type WebPush struct {
	opts   WebPushOptions
	logger *zap.SugaredLogger

	mu   sync.Mutex
	subs []Subscription
}

type pushPayload struct {
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Icon               string    `json:"icon"`
	Badge              string    `json:"badge"`
	Tag                string    `json:"tag"`
	Vibrate            []int     `json:"vibrate"`
	RequireInteraction bool      `json:"requireInteraction"`
	Renotify           bool      `json:"renotify"`
	Data               pushExtra `json:"data"`
}

type pushExtra struct {
	ReminderID  string `json:"reminderId"`
	OrderNumber string `json:"orderNumber"`
	Section     string `json:"section"`
	Cycle       int    `json:"cycle"`
}

func NewWebPush(opts WebPushOptions) *WebPush {
	if opts.TTL <= 0 {
		opts.TTL = 30
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	subs := make([]Subscription, len(opts.Subscriptions))
	copy(subs, opts.Subscriptions)
	return &WebPush{opts: opts, logger: logger, subs: subs}
}

func (w *WebPush) Permission(context.Context) error {
	if w.opts.VAPIDPrivateKey == "" || w.opts.VAPIDPublicKey == "" {
		return fmt.Errorf("%w: web push has no VAPID keys", ErrPermissionDenied)
	}
	if len(w.Subscriptions()) == 0 {
		return fmt.Errorf("%w: web push has no subscriptions", ErrPermissionDenied)
	}
	return nil
}

func (w *WebPush) Subscriptions() []Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Subscription, len(w.subs))
	copy(out, w.subs)
	return out
}

func (w *WebPush) Show(ctx context.Context, in trigger.Intent) error {
	message, err := EncodePayload(in)
	if err != nil {
		return err
	}
	var errs []error
	for _, sub := range w.Subscriptions() {
		if err := w.push(ctx, sub, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *WebPush) push(ctx context.Context, sub Subscription, message []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      w.opts.HTTPClient,
		Subscriber:      w.opts.Subscriber,
		VAPIDPublicKey:  w.opts.VAPIDPublicKey,
		VAPIDPrivateKey: w.opts.VAPIDPrivateKey,
		TTL:             w.opts.TTL,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("web push to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		w.drop(sub.Endpoint)
		w.logger.Infow("web push subscription expired", "endpoint", sub.Endpoint, "status", resp.StatusCode)
		return nil
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("web push to %s: status %d: %s", sub.Endpoint, resp.StatusCode, body)
	}
	return nil
}

func (w *WebPush) drop(endpoint string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.subs[:0]
	for _, s := range w.subs {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	w.subs = kept
}

// EncodePayload renders the JSON a service worker turns into a notification.
func EncodePayload(in trigger.Intent) ([]byte, error) {
	return json.Marshal(pushPayload{
		Title:              in.Title,
		Body:               in.Body,
		Icon:               "/icon-192x192.png",
		Badge:              "/icon-72x72.png",
		Tag:                "reminder-" + in.DedupTag,
		Vibrate:            vibratePattern,
		RequireInteraction: true,
		Renotify:           true,
		Data: pushExtra{
			ReminderID:  in.ReminderID,
			OrderNumber: in.OrderNumber,
			Section:     string(in.Section),
			Cycle:       in.Cycle,
		},
	})
}
