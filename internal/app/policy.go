package app

import (
	"errors"

	"github.com/dkeye/mucd/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	EvictOccupant
)

// Policy decides what happens to an occupant whose delivery failed.
type Policy interface {
	OnDeliveryFailure(room *core.Room, occ *core.Occupant, err error) BackpressureAction
}

// SimplePolicy evicts occupants whose local queue is full and ignores
// other failures.
type SimplePolicy struct{}

func (SimplePolicy) OnDeliveryFailure(room *core.Room, occ *core.Occupant, err error) BackpressureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return EvictOccupant
	}
	return NoAction
}
