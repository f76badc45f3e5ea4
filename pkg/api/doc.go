/*
Package api serves gridsync's HTTP surface.

# Endpoints

	GET  /v1/snapshot?sheet=S       full state + version (header token)
	POST /v1/snapshot               body {sheet, token} for transports
	                                that cannot set headers
	GET  /v1/changes?sheet=S&since=N delta since a known version
	POST /v1/changes                body {sheet, since, token}
	GET  /v1/events                 websocket event stream
	GET  /health                    liveness
	GET  /metrics                   Prometheus exposition

# Envelope

Successful responses are `{"ok":true, ...}`; failures are
`{"ok":false,"error":...}` with the status reflecting the taxonomy:
401 Unauthorized, 404 NotFound, 422 SchemaError, 500 ServerError.
Open deployments additionally carry `"meta":{"authMode":"open"}`.

# Token rules

Tokens arrive via `Authorization: Bearer`, the `X-Gridsync-Token`
header, or the POST body. A `token=` query parameter is rejected even
when correct while a secret is configured, so tokens cannot leak
through request logs or referrers.
*/
package api
