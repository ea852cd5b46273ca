// Package rest is a small client for the livepaste snippet API.
//
// Non-2xx responses come back as *APIError; errors.Is matches ErrNotFound for
// 404 and ErrConflict for 409.
package rest
