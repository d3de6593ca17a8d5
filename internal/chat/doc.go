// Package chat holds the message model and the in-memory message store.
//
// The Store keeps a bounded history per room. Appending a message validates
// it, assigns its identifier and timestamp, evicts the oldest message of the
// room once the retention cap is exceeded, and hands the stored message to a
// Publisher so live subscribers can be notified.
package chat
