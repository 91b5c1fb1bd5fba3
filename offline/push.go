package offline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/praktikumlab/go-praktikum/logger"
)

// PushChannel is the realtime channel push payloads are delivered on.
const PushChannel = "praktikum:push"

// Defaults applied to sparse push payloads.
const (
	defaultPushTitle = "Praktikum Kebidanan"
	defaultPushBody  = "Ada pembaruan baru"
	defaultPushIcon  = "/icons/icon-192x192.png"
	defaultPushBadge = "/icons/badge-72x72.png"
)

// PushPayload is the JSON body of a push delivery. Every field is optional;
// missing fields are filled with defaults and a non-JSON payload becomes the
// notification body verbatim.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	ID    string `json:"id"`
}

// ParsePushPayload decodes a raw push delivery, falling back to plain text.
func ParsePushPayload(data []byte) PushPayload {
	var p PushPayload
	if err := json.Unmarshal(data, &p); err != nil {
		p = PushPayload{Body: strings.TrimSpace(string(data))}
	}
	if p.Title == "" {
		p.Title = defaultPushTitle
	}
	if p.Body == "" {
		p.Body = defaultPushBody
	}
	if p.Icon == "" {
		p.Icon = defaultPushIcon
	}
	if p.Badge == "" {
		p.Badge = defaultPushBadge
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return p
}

// NotificationAction is an actionable button on a rendered notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Notification is the rendered form of a push payload.
type Notification struct {
	ID      string               `json:"id"`
	Title   string               `json:"title"`
	Body    string               `json:"body"`
	Icon    string               `json:"icon"`
	Badge   string               `json:"badge"`
	Actions []NotificationAction `json:"actions"`
}

func (p PushPayload) notification() Notification {
	return Notification{
		ID:    p.ID,
		Title: p.Title,
		Body:  p.Body,
		Icon:  p.Icon,
		Badge: p.Badge,
		Actions: []NotificationAction{
			{Action: "open", Title: "Buka Aplikasi"},
			{Action: "close", Title: "Tutup"},
		},
	}
}

// Notifier renders notifications to the user.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
}

// Opener opens or focuses the application window on notification click.
type Opener interface {
	OpenOrFocus(ctx context.Context, url string) error
}

// PushSubscriber listens on the realtime channel and renders incoming push
// payloads through a Notifier.
type PushSubscriber struct {
	client   *redis.Client
	notifier Notifier
	opener   Opener
	origin   string
	log      logger.Logger
}

// NewPushSubscriber wires push delivery for the given application origin.
func NewPushSubscriber(client *redis.Client, notifier Notifier, opener Opener, origin string, log logger.Logger) *PushSubscriber {
	return &PushSubscriber{
		client:   client,
		notifier: notifier,
		opener:   opener,
		origin:   origin,
		log:      log.With(map[string]interface{}{"component": "push"}),
	}
}

// Run subscribes to the push channel and blocks until ctx is cancelled.
// Render failures are logged and do not stop the subscription.
func (s *PushSubscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, PushChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.deliver(ctx, []byte(msg.Payload))
		}
	}
}

func (s *PushSubscriber) deliver(ctx context.Context, payload []byte) {
	n := ParsePushPayload(payload).notification()
	if err := s.notifier.Show(ctx, n); err != nil {
		s.log.Warn("notification render failed: %v", err)
		return
	}
	s.log.Debug("notification shown: %s", n.ID)
}

// HandleClick reacts to a notification action: "close" dismisses, anything
// else opens or focuses the application window.
func (s *PushSubscriber) HandleClick(ctx context.Context, action string) error {
	if action == "close" {
		return nil
	}
	return s.opener.OpenOrFocus(ctx, s.origin+"/")
}
