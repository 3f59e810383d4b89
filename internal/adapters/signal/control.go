package signal

func (ctl *SignalWSController) handlePing(conn *WsSignalConn, env envelope) {
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
	}{"pong", env.ID})
}

func (ctl *SignalWSController) handleWhoAmI(cl *client, env envelope) {
	rooms := ctl.Orch.Registry.RoomsOf(cl.full)
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		names = append(names, string(r))
	}
	ctl.reply(cl.conn, env, struct {
		JID   string   `json:"jid"`
		Rooms []string `json:"rooms"`
	}{cl.full.String(), names})
}
