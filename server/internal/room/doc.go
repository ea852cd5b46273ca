// Package room implements the live fan-out side of collaborative editing.
//
// A Hub maps each slug to exactly one Topic. A Topic delivers every published
// message to every current Subscription without ever blocking the publisher:
// each subscription owns a bounded buffer, and when it is full the oldest
// buffered message is discarded to make room. Subscribers must tolerate gaps.
//
// When the hub is given a presence encoder, every subscribe and unsubscribe
// publishes presence(count) while the topic is still locked, so announcements
// reach subscribers in the same order the count changed and the last one each
// subscriber sees matches the settled count.
//
// Topics are never removed while anybody is subscribed. Hub.Run periodically
// retires topics that have had no subscribers for longer than the idle grace
// period; a grace of zero keeps every topic for the life of the process.
package room
