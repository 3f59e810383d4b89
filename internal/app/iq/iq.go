// Package iq holds the request handlers of the room service: admin
// (role and affiliation changes), registration and room search.
package iq

import (
	"context"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
)

// Deliverer sends out what a locked mutation produced.
type Deliverer interface {
	Deliver(ctx context.Context, room *core.Room, out core.Outcome) error
}

// ErrorReply is the error element carried by a reply.
type ErrorReply struct {
	Type      string `json:"type"`
	Condition string `json:"condition"`
	Text      string `json:"text,omitempty"`
}

func errorReply(err error) *ErrorReply {
	se := domain.StanzaError(err)
	return &ErrorReply{Type: string(se.Type), Condition: string(se.Condition), Text: err.Error()}
}

func lookupRoom(svc *core.Service, name domain.RoomName) (*core.Room, error) {
	room, ok := svc.Room(name)
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return room, nil
}
