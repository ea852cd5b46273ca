// Package protocol defines the room synchronization messages exchanged over a
// viewer's WebSocket.
//
// Every message is a JSON object whose "type" field names its kind:
//
//	client → server   edit, image, remove_image
//	server → room     broadcast_edit, broadcast_image, broadcast_remove_image, viewers
//	server → joiner   connected
//
// Message is a closed set: only the types in this package implement it, and
// Encode/Decode switch over every kind exhaustively.
package protocol
