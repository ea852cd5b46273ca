// Package auth guards the livepaste admin surfaces with a shared API key.
//
// APIKeyInterceptor and APIKeyStreamInterceptor protect the gRPC admin
// listener; APIKeyMiddleware protects HTTP endpoints such as /metrics.
// Viewers and the snippet API are never authenticated.
//
// When mode != "apikey" or key == "", every request passes through (useful for
// local development). A missing or incorrect key is rejected with
// codes.Unauthenticated (gRPC) or 401 (HTTP).
package auth
