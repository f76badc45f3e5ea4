/*
Package events provides an in-memory event broker for gridsync's
pub/sub notifications.

The broker broadcasts data and sync lifecycle events (sheet edits,
log truncation, sync transitions, cache migration) to interested
subscribers over buffered channels. Publishing never blocks: a
subscriber whose buffer is full misses the event rather than stalling
the publisher.

	Publisher → Event Channel (buffer: 100)
	     ↓
	Broadcast Loop
	     ↓
	Subscriber Channels (buffer: 50 each)

The API server bridges the broker onto the /v1/events websocket, and
the watch CLI command consumes that stream.
*/
package events
