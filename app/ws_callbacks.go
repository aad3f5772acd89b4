package collaboard

// onDisconnect turns an abrupt connection close into the same cleanup an
// explicit room:leave performs. The manager guarantees it fires exactly once
// per closed connection.
func (app *App) onDisconnect(userID string) {
	roomID, ok := app.sessions.LoadAndDelete(userID)
	if !ok {
		return
	}
	room, err := app.registry.Get(roomID)
	if err != nil {
		return
	}
	room.Leave(userID)
}
