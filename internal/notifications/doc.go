// Package notifications pushes station alerts to an operator's phone.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. Alerts
// cover the moments an unattended stand needs a human: a growing offline
// backlog, a drained queue, and local storage that stopped persisting.
package notifications
