// Package cluster carries occupant notifications between nodes over kafka.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/mucd/internal/app/orch"
	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindMessage     Kind = "message"
)

const handleTimeout = 10 * time.Second

// Notification is the topic payload.
type Notification struct {
	Kind    Kind   `json:"kind"`
	FullJID string `json:"full_jid"`
	Room    string `json:"room,omitempty"`
	Node    string `json:"node"`
	Status  string `json:"status,omitempty"`

	From           string `json:"from,omitempty"`
	Body           string `json:"body,omitempty"`
	InviteFrom     string `json:"invite_from,omitempty"`
	InviteReason   string `json:"invite_reason,omitempty"`
	InvitePassword string `json:"invite_password,omitempty"`
}

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reader is the subset of kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer Writer
	node   string
}

func NewPublisher(brokers []string, topic, node string) *Publisher {
	return NewPublisherWithWriter(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}, node)
}

func NewPublisherWithWriter(w Writer, node string) *Publisher {
	return &Publisher{writer: w, node: node}
}

func (p *Publisher) Close() error { return p.writer.Close() }

func (p *Publisher) publish(ctx context.Context, n Notification) error {
	n.Node = p.node
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(n.FullJID), Value: b}); err != nil {
		log.Error().Str("module", "cluster").Str("kind", string(n.Kind)).Err(err).Msg("kafka write failed")
		return fmt.Errorf("publish %s notification: %w", n.Kind, err)
	}
	return nil
}

// OnEvent is an event bus listener: local occupants leaving a room are
// announced so other nodes can drop their copies.
func (p *Publisher) OnEvent(ctx context.Context, ev domain.Event) error {
	if ev.Node != "" {
		return nil
	}
	switch ev.Kind {
	case domain.EventOccupantLeft, domain.EventOccupantKicked:
	default:
		return nil
	}
	return p.publish(ctx, Notification{
		Kind:    KindUnavailable,
		FullJID: ev.JID.String(),
		Room:    string(ev.Room),
	})
}

// Route forwards a packet for a recipient with no session on this node.
func (p *Publisher) Route(pkt domain.Packet) error {
	msg, ok := pkt.(*domain.Message)
	if !ok {
		return fmt.Errorf("%w: only messages cross nodes", core.ErrNoRoute)
	}
	n := Notification{
		Kind:    KindMessage,
		FullJID: msg.To.String(),
		From:    msg.From.String(),
		Body:    msg.Body,
	}
	if inv := msg.Invite; inv != nil {
		n.InviteFrom = inv.From.String()
		n.InviteReason = inv.Reason
		n.InvitePassword = inv.Password
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	return p.publish(ctx, n)
}

// Handler processes one notification from another node.
type Handler func(ctx context.Context, n Notification) error

type Consumer struct {
	reader Reader
	node   string
}

func NewConsumer(brokers []string, topic, group, node string) *Consumer {
	return NewConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), node)
}

func NewConsumerWithReader(r Reader, node string) *Consumer {
	return &Consumer{reader: r, node: node}
}

func (c *Consumer) Close() error { return c.reader.Close() }

// Run fetches until ctx is done. Own notifications and undecodable ones
// are committed without handling; a failed handler leaves the offset for
// redelivery.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	log.Info().Str("module", "cluster").Str("node", c.node).Msg("consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Str("module", "cluster").Err(err).Msg("fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var n Notification
		if err := json.Unmarshal(m.Value, &n); err != nil {
			log.Warn().Str("module", "cluster").Int64("offset", m.Offset).Err(err).Msg("bad notification")
		} else if n.Node != c.node {
			hctx, cancel := context.WithTimeout(ctx, handleTimeout)
			err = handle(hctx, n)
			cancel()
			if err != nil {
				log.Error().Str("module", "cluster").Int64("offset", m.Offset).Err(err).Msg("notification failed")
				continue
			}
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Error().Str("module", "cluster").Err(err).Msg("commit failed")
		}
	}
}

// NewInbound turns notifications into remote-user departures and local
// message deliveries.
func NewInbound(o *orch.Orchestrator, local func(domain.Packet) error) Handler {
	return func(ctx context.Context, n Notification) error {
		full, err := jid.Parse(n.FullJID)
		if err != nil {
			log.Warn().Str("module", "cluster").Str("jid", n.FullJID).Err(err).Msg("notification dropped")
			return nil
		}
		switch n.Kind {
		case KindUnavailable:
			p := &domain.Presence{Type: stanza.UnavailablePresence, Status: n.Status}
			if n.Room != "" {
				to, err := o.Service.RoomAddress(domain.RoomName(n.Room))
				if err != nil {
					return nil
				}
				p.To = to
			}
			err = orch.NewRemoteUser(o, full, n.Node).Process(ctx, p)
			if errors.Is(err, domain.ErrItemNotFound) || errors.Is(err, domain.ErrUserNotFound) {
				return nil
			}
			return err
		case KindMessage:
			msg := &domain.Message{To: full, Body: n.Body}
			msg.From, _ = jid.Parse(n.From)
			if n.InviteFrom != "" {
				from, _ := jid.Parse(n.InviteFrom)
				msg.Invite = &domain.Invite{From: from, Reason: n.InviteReason, Password: n.InvitePassword}
			}
			if err := local(msg); err != nil {
				log.Debug().Str("module", "cluster").Str("to", n.FullJID).Err(err).Msg("forwarded message not delivered")
			}
			return nil
		default:
			log.Warn().Str("module", "cluster").Str("kind", string(n.Kind)).Msg("unknown notification")
			return nil
		}
	}
}
