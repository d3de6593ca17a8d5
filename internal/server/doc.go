// Package server implements the live fan-out side of roomcast: the Hub of
// subscribers, the Dispatcher that pushes message and ping events, the
// Session that drains one connection's queue, and the HTTP handlers that
// ingest messages and open SSE or WebSocket streams.
//
// Messages enter through the chat.Store, which publishes each stored message
// to the Dispatcher. The Dispatcher serializes the event once and hands the
// frame to every matching Session without blocking; a Session whose queue is
// full or closed is dropped from the Hub.
package server
