package engine

import (
	"context"
	"fmt"
	"log"

	"funnel-backend/internal/instrument"
	"funnel-backend/internal/store"
)

// MessageSender delivers a templated message to a user over a channel.
// The default implementation only logs; real channels (email, push) plug
// in behind this interface.
type MessageSender interface {
	Send(ctx context.Context, userID, channel, template string, params map[string]any) error
}

// LogMessageSender writes messages to the application log.
type LogMessageSender struct{}

func (LogMessageSender) Send(ctx context.Context, userID, channel, template string, params map[string]any) error {
	log.Printf("message to user %s via %s: template=%s params=%v", userID, channel, template, params)
	return nil
}

func configString(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

func configInt(config map[string]any, key string) (int, bool) {
	switch v := config[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// --- send_message ---

type SendMessageHandler struct {
	Sender MessageSender
}

func (h *SendMessageHandler) Type() string { return "send_message" }

func (h *SendMessageHandler) Execute(ctx context.Context, userID string, config map[string]any) error {
	template := configString(config, "template")
	if template == "" {
		return fmt.Errorf("send_message: missing template")
	}
	channel := configString(config, "channel")
	if channel == "" {
		channel = "email"
	}
	params, _ := config["params"].(map[string]any)
	return h.Sender.Send(ctx, userID, channel, template, params)
}

// --- add_tag / remove_tag ---

type AddTagHandler struct {
	Store *store.Store
}

func (h *AddTagHandler) Type() string { return "add_tag" }

func (h *AddTagHandler) Execute(ctx context.Context, userID string, config map[string]any) error {
	tag := configString(config, "tag")
	if tag == "" {
		return fmt.Errorf("add_tag: missing tag")
	}
	pb := h.Store.Dialect.NewParamBuilder()
	var query string
	if h.Store.Dialect.Name() == "sqlite" {
		query = fmt.Sprintf("INSERT OR IGNORE INTO _user_tags (user_id, tag) VALUES (%s, %s)",
			pb.Add(userID), pb.Add(tag))
	} else {
		query = fmt.Sprintf("INSERT INTO _user_tags (user_id, tag) VALUES (%s, %s) ON CONFLICT DO NOTHING",
			pb.Add(userID), pb.Add(tag))
	}
	_, err := store.Exec(ctx, h.Store.DB, query, pb.Params()...)
	return err
}

type RemoveTagHandler struct {
	Store *store.Store
}

func (h *RemoveTagHandler) Type() string { return "remove_tag" }

func (h *RemoveTagHandler) Execute(ctx context.Context, userID string, config map[string]any) error {
	tag := configString(config, "tag")
	if tag == "" {
		return fmt.Errorf("remove_tag: missing tag")
	}
	pb := h.Store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("DELETE FROM _user_tags WHERE user_id = %s AND tag = %s",
		pb.Add(userID), pb.Add(tag))
	_, err := store.Exec(ctx, h.Store.DB, query, pb.Params()...)
	return err
}

// --- grant_credits ---

type GrantCreditsHandler struct {
	Store *store.Store
}

func (h *GrantCreditsHandler) Type() string { return "grant_credits" }

func (h *GrantCreditsHandler) Execute(ctx context.Context, userID string, config map[string]any) error {
	amount, ok := configInt(config, "amount")
	if !ok || amount <= 0 {
		return fmt.Errorf("grant_credits: invalid amount")
	}
	pb := h.Store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("UPDATE users SET credits = credits + %s WHERE id = %s",
		pb.Add(amount), pb.Add(userID))
	n, err := store.Exec(ctx, h.Store.DB, query, pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("grant_credits: user %s not found", userID)
	}
	return nil
}

// --- webhook ---

type WebhookActionHandler struct {
	Dispatcher *WebhookDispatcher
}

func (h *WebhookActionHandler) Type() string { return "webhook" }

func (h *WebhookActionHandler) Execute(ctx context.Context, userID string, config map[string]any) error {
	url := configString(config, "url")
	if url == "" {
		return fmt.Errorf("webhook: missing url")
	}
	event := configString(config, "event")
	if event == "" {
		event = "automation.action"
	}
	payload := map[string]any{"event": event, "user_id": userID}
	if extra, ok := config["payload"].(map[string]any); ok {
		for k, v := range extra {
			payload[k] = v
		}
	}
	return h.Dispatcher.Deliver(ctx, url, event, payload)
}

// --- emit_event ---

type EmitEventHandler struct{}

func (h *EmitEventHandler) Type() string { return "emit_event" }

func (h *EmitEventHandler) Execute(ctx context.Context, userID string, config map[string]any) error {
	name := configString(config, "name")
	if name == "" {
		return fmt.Errorf("emit_event: missing name")
	}
	meta, _ := config["metadata"].(map[string]any)
	ctx = instrument.WithUserID(ctx, userID)
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, name, "user", userID, meta)
	return nil
}
