package signal

import (
	"context"

	"github.com/dkeye/mucd/internal/app/iq"
	"github.com/dkeye/mucd/internal/domain"
)

func (ctl *SignalWSController) handleAdmin(ctx context.Context, cl *client, env envelope) {
	res, err := ctl.Admin.Handle(ctx, domain.RoomName(env.Room), cl.full, iq.AdminRequest{Items: env.Items})
	ctl.observe("admin", err)
	if err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	ctl.reply(cl.conn, env, res)
}

func (ctl *SignalWSController) handleRegisterGet(ctx context.Context, cl *client, env envelope) {
	form, err := ctl.Register.Get(ctx, domain.RoomName(env.Room), cl.full)
	ctl.observe("register_get", err)
	if err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	ctl.reply(cl.conn, env, form)
}

func (ctl *SignalWSController) handleRegisterSet(ctx context.Context, cl *client, env envelope) {
	res, err := ctl.Register.Set(ctx, domain.RoomName(env.Room), cl.full, iq.RegisterSetRequest{Remove: env.Remove, Fields: env.Fields})
	ctl.observe("register_set", err)
	if err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	ctl.reply(cl.conn, env, res)
}

func (ctl *SignalWSController) handleSearch(ctx context.Context, cl *client, env envelope) {
	res, err := ctl.Search.Search(ctx, iq.SearchRequest{Filters: env.Filters, Paging: env.Paging})
	ctl.observe("search", err)
	if err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	ctl.reply(cl.conn, env, res)
}
