// Package admin runs livepaste's gRPC admin listener.
//
// It serves grpc.health.v1.Health. A probe loop pings the snippet store every
// interval and reports SERVING or NOT_SERVING for both the overall ("") service
// and ServiceName. Every call passes the API-key interceptors from package auth.
package admin
