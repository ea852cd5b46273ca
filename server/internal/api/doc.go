// Package api implements the livepaste HTTP surface.
//
// New(store, opts) returns a chi router that serves:
//
//	GET    /health               {"ok": true}
//	GET    /api/check/{slug}     slug availability (sanitized slug echoed back)
//	POST   /api/snippets         create; 201 {slug, expires_at}, 409 if the slug is live
//	GET    /api/snippets/{slug}  live snippet or 404
//	PATCH  /api/snippets/{slug}  partial update; 204, 404 if not live
//	DELETE /api/snippets/{slug}  204 whether or not it existed
//	GET    /ws/{slug}            WebSocket upgrade into a room session
//	GET    /metrics              Prometheus text, behind the admin API key
//
// Errors are JSON {"error": "..."}. Every request is logged with its status
// and duration; CORS admits the configured frontend origin.
package api
