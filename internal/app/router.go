package app

import (
	"fmt"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// Router is the generic delivery fallback: it looks the recipient up in
// the session registry, hands the packet to Remote when nobody is
// connected here, and drops it otherwise. A bare recipient reaches every
// bound resource.
type Router struct {
	Sessions core.SessionLookup
	Remote   core.Router
}

func NewRouter(sessions core.SessionLookup) *Router {
	return &Router{Sessions: sessions}
}

func (r *Router) Route(pkt domain.Packet) error {
	if delivered, err := r.deliverLocal(pkt); delivered {
		return err
	}
	if r.Remote != nil {
		return r.Remote.Route(pkt)
	}
	to := pkt.Recipient()
	log.Debug().Str("module", "app.router").Str("to", to.String()).Msg("no session, packet dropped")
	return fmt.Errorf("%w: %s", core.ErrNoRoute, to)
}

// Local delivers only to sessions of this node.
func (r *Router) Local(pkt domain.Packet) error {
	if delivered, err := r.deliverLocal(pkt); delivered {
		return err
	}
	return fmt.Errorf("%w: %s", core.ErrNoRoute, pkt.Recipient())
}

func (r *Router) deliverLocal(pkt domain.Packet) (bool, error) {
	if r.Sessions == nil {
		return false, nil
	}
	to := pkt.Recipient()
	if to.Resourcepart() != "" {
		if sess, ok := r.Sessions.SessionFor(to); ok && sess.IsAuthenticated() {
			return true, sess.Deliver(pkt)
		}
		return false, nil
	}
	var (
		delivered bool
		errs      error
	)
	for _, sess := range r.Sessions.SessionsOf(to) {
		if !sess.IsAuthenticated() {
			continue
		}
		delivered = true
		errs = multierr.Append(errs, sess.Deliver(pkt))
	}
	return delivered, errs
}
