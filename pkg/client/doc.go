// Package client provides the typed HTTP client for the gridsync API:
// snapshot and delta fetches with the token attached as a header, plus
// a websocket event watcher. Status codes and transport failures map
// onto the shared error taxonomy so the sync client can decide between
// retry, surface, and resync without inspecting HTTP details.
package client
