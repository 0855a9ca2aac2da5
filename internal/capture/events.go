package capture

import (
	"context"

	"portfolio-chat/internal/domain/entities"
)

// MessageEvent covers the generic, user-message and response hook payloads. The widget is
// not consistent about which fields it fills.
type MessageEvent struct {
	ID        string `json:"id,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Text      string `json:"text,omitempty"`
}

// ThreadEvent is a low-level stream event.
type ThreadEvent struct {
	Type       string         `json:"type,omitempty"`
	Message    *ThreadMessage `json:"message,omitempty"`
	OutputText string         `json:"output_text,omitempty"`
	Delta      string         `json:"delta,omitempty"`
}

type ThreadMessage struct {
	Role    string          `json:"role,omitempty"`
	Content []ThreadContent `json:"content,omitempty"`
}

type ThreadContent struct {
	Text *struct {
		Value string `json:"value"`
	} `json:"text,omitempty"`
}

// OnMessage handles the generic message hook. Role defaults to user.
func (r *Recorder) OnMessage(ctx context.Context, ev MessageEvent) Outcome {
	content := ev.Content
	if content == "" {
		content = ev.Text
	}
	role := ev.Role
	if role == "" {
		role = entities.RoleUser
	}
	id := ev.ID
	if id == "" {
		id = ev.MessageID
	}
	return r.Ingest(ctx, Observation{Source: SourceMessage, Role: role, Content: content, MessageID: id})
}

func (r *Recorder) OnUserMessage(ctx context.Context, ev MessageEvent) Outcome {
	return r.Ingest(ctx, Observation{Source: SourceUserMessage, Role: entities.RoleUser, Content: ev.Text, MessageID: ev.ID})
}

func (r *Recorder) OnResponse(ctx context.Context, ev MessageEvent) Outcome {
	return r.Ingest(ctx, Observation{Source: SourceResponse, Role: entities.RoleAssistant, Content: ev.Text, MessageID: ev.ID})
}

// OnThreadEvent normalizes a stream event into a turn when it carries text. A role that
// cannot be determined defaults to assistant.
func (r *Recorder) OnThreadEvent(ctx context.Context, ev ThreadEvent) Outcome {
	text := ""
	role := entities.RoleAssistant
	if ev.Message != nil {
		if len(ev.Message.Content) > 0 && ev.Message.Content[0].Text != nil {
			text = ev.Message.Content[0].Text.Value
		}
		if ev.Message.Role == entities.RoleUser {
			role = entities.RoleUser
		}
	}
	if text == "" {
		text = ev.OutputText
	}
	if text == "" {
		text = ev.Delta
	}
	if text == "" {
		return Discarded
	}
	return r.Ingest(ctx, Observation{Source: SourceThreadEvent, Role: role, Content: text})
}
