// Package ws implements the per-viewer Connection Session for a room.
//
// Handler.Serve upgrades an HTTP request for /ws/{slug} to a WebSocket and runs
// one session until either direction ends:
//
//	Connecting → Active → Closing → Closed
//
// On joining, the viewer is sent
//
//	{"type":"connected","slug":"...","viewers":N}
//
// where N counts the viewers already present, and the room hub announces
// {"type":"viewers","count":N+1} to everybody. The hub must therefore be built
// with room.WithPresence(ws.Presence).
//
// While active, a reader goroutine handles client messages one at a time
// (persist, then publish to the room) and a writer goroutine forwards room
// messages verbatim and sends keepalive pings. Malformed or unknown client
// messages are dropped without closing the connection; socket errors end the
// session, which releases its subscription so the room is told the new count.
//
// The upgrader accepts the origins allowed by Options.CheckOrigin (all origins
// when nil).
package ws
