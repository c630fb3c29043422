// Package broadcast implements the dashboard room broadcaster using the actor pattern.
//
// One goroutine owns the connection registry and the room table and processes commands from
// a buffered channel (no mutexes around the maps). Transports call Open/Receive/Touch/Close
// with the opaque client id handed out by Open; request handlers call Publish, which validates
// and serializes on the caller's goroutine and then enqueues without blocking.
//
// A heartbeat ticker runs only while at least one connection is registered. Each tick evicts
// connections that have been silent longer than the stale window and pings the rest.
package broadcast
