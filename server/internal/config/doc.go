// Package config loads the server configuration from the `server:` section of
// config.yaml.
//
// Config fields:
//   - HTTPPort                 port for the REST API and /ws endpoint (default 3001, $PORT)
//   - GRPCPort                 admin health listener (default 50051, 0 disables)
//   - FrontendURL              CORS origin (default http://localhost:3000, $FRONTEND_URL)
//   - LogLevel                 debug | info | warn | error (hot-reloadable)
//   - Database.Path            SQLite file or sqlite:// URL ($DATABASE_URL)
//   - Snippet.TTL              lifetime of a new snippet (default 24h)
//   - Snippet.CleanupInterval  expired-row purge period (default 1h)
//   - Rooms.Buffer             per-viewer outbound queue (default 64)
//   - Rooms.SweepInterval      idle-room check period (hot-reloadable)
//   - Rooms.IdleGrace          how long an empty room lingers (hot-reloadable)
//   - WebSocket.MaxMessageBytes  inbound frame limit (default 8 MiB)
//   - Auth.Mode / KeyEnv / Header  API key for /metrics and gRPC admin
//
// Load(path) applies defaults, the YAML file, then environment overrides, and
// validates the result. Watch re-runs Load whenever the file changes.
package config
