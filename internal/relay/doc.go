// Package relay is the HTTP backend stations deliver to. It validates scan,
// session and auth requests and forwards them to the event's n8n webhooks.
//
// The relay keeps no state of its own: it answers /health for station
// probes, redirects /<exhibitor id> links to the station landing page, and
// tags every request with an X-Request-ID that appears in its logs.
package relay
