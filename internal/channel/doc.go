// Package channel carries protocol envelopes over WebSocket.
//
// The server side (Handler) upgrades HTTP requests and adapts each
// connection into an engine peer with a bounded outbox. The client side
// (Client) keeps one connection alive with capped exponential backoff,
// correlates requests with replies by requestId and delivers every inbound
// envelope to a single subscriber.
//
// Frames are JSON text messages, one protocol.Envelope each.
package channel
