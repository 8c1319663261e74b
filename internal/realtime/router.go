package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chathub/internal/logx"
	"chathub/internal/models"
	"chathub/internal/observability"
)

// DefaultMaxContentLength caps message content in runes.
const DefaultMaxContentLength = 4000

const (
	pathDirect = "direct"
	pathNotify = "notify"
)

// Router persists outbound messages and decides, per recipient, between
// direct delivery to live connections and a notification hand-off.
type Router struct {
	registry   *Registry
	messages   MessageStore
	groups     GroupDirectory
	notifier   Notifier
	transport  Transport
	maxContent int
}

// NewRouter builds a Router. maxContent <= 0 selects DefaultMaxContentLength.
func NewRouter(registry *Registry, messages MessageStore, groups GroupDirectory, notifier Notifier, transport Transport, maxContent int) *Router {
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	return &Router{
		registry:   registry,
		messages:   messages,
		groups:     groups,
		notifier:   notifier,
		transport:  transport,
		maxContent: maxContent,
	}
}

// Send dispatches on chatType.
func (r *Router) Send(ctx context.Context, sender models.Identity, receiverID string, chatType models.ChatType, content string) (models.Message, error) {
	switch chatType {
	case models.ChatTypePrivate:
		return r.SendPrivate(ctx, sender, receiverID, content)
	case models.ChatTypeGroup:
		return r.SendGroup(ctx, sender, receiverID, content)
	default:
		return models.Message{}, fmt.Errorf("%w: unknown chat type %q", ErrInvalidMessage, chatType)
	}
}

// SendPrivate persists a private message, then either delivers it to every
// live connection of the receiver or hands it to the notifier. Never both.
func (r *Router) SendPrivate(ctx context.Context, sender models.Identity, receiverID, content string) (msg models.Message, err error) {
	ctx, span := otel.Tracer("chathub/realtime").Start(ctx, "router.send_private",
		trace.WithAttributes(attribute.String("sender_id", sender.ID), attribute.String("receiver_id", receiverID)))
	defer func() { endSpan(span, err) }()

	if err := r.validate(sender, receiverID, content); err != nil {
		return models.Message{}, err
	}
	if receiverID == sender.ID {
		return models.Message{}, fmt.Errorf("%w: cannot message yourself", ErrInvalidMessage)
	}

	msg, err = r.messages.Insert(ctx, models.Message{
		ChatType:   models.ChatTypePrivate,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		ReceiverID: receiverID,
		Content:    content,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}

	if err := r.route(ctx, msg, receiverID, ""); err != nil {
		return msg, err
	}
	return msg, nil
}

// SendGroup checks the sender's membership, persists the message and applies
// the live/offline decision independently for every other member.
func (r *Router) SendGroup(ctx context.Context, sender models.Identity, groupID, content string) (msg models.Message, err error) {
	ctx, span := otel.Tracer("chathub/realtime").Start(ctx, "router.send_group",
		trace.WithAttributes(attribute.String("sender_id", sender.ID), attribute.String("group_id", groupID)))
	defer func() { endSpan(span, err) }()

	if err := r.validate(sender, groupID, content); err != nil {
		return models.Message{}, err
	}

	group, err := r.groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Message{}, fmt.Errorf("load group %s: %w", groupID, err)
	}
	if !group.HasMember(sender.ID) {
		return models.Message{}, fmt.Errorf("%w: user %s is not a member of group %s", ErrAccessDenied, sender.ID, groupID)
	}

	msg, err = r.messages.Insert(ctx, models.Message{
		ChatType:   models.ChatTypeGroup,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		ReceiverID: groupID,
		Content:    content,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}

	var errs []error
	for _, memberID := range group.MemberIDs {
		if memberID == sender.ID {
			continue
		}
		if err := r.route(ctx, msg, memberID, groupID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return msg, errors.Join(errs...)
	}
	return msg, nil
}

// route applies the deliver-or-notify decision for one recipient. A non-empty
// groupID routes through that group's channel; live handles of a member are
// subscribed first, so members added after connecting still receive it.
// When no live handle accepts the event the recipient is notified instead.
func (r *Router) route(ctx context.Context, msg models.Message, recipientID, groupID string) error {
	if conns := r.registry.Connections(recipientID); len(conns) > 0 {
		event := models.Event{Type: models.EventMessage, Message: &msg}
		var delivered int
		if groupID != "" {
			for _, connID := range conns {
				r.transport.Subscribe(connID, groupID)
			}
			delivered = r.transport.DeliverGroup(ctx, groupID, conns, event)
		} else {
			delivered = r.transport.Deliver(ctx, conns, event)
		}
		if delivered > 0 {
			observability.IncDelivery(string(msg.ChatType), pathDirect)
			return nil
		}
		l := logx.Ctx(ctx)
		l.Debug().Str("message_id", msg.ID).Str("receiver_id", recipientID).Msg("no live handle accepted message, notifying")
	}

	err := r.notifier.Notify(ctx, models.Notification{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: recipientID,
		Content:    msg.Content,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		l := logx.Ctx(ctx)
		l.Warn().Err(err).Str("message_id", msg.ID).Str("receiver_id", recipientID).Msg("notification hand-off failed")
		return fmt.Errorf("notify %s: %w", recipientID, err)
	}
	observability.IncDelivery(string(msg.ChatType), pathNotify)
	return nil
}

func (r *Router) validate(sender models.Identity, receiverID, content string) error {
	if sender.ID == "" {
		return ErrUnauthenticated
	}
	if strings.TrimSpace(receiverID) == "" {
		return fmt.Errorf("%w: receiver is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(content) > r.maxContent {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidMessage, r.maxContent)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
