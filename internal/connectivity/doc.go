// Package connectivity tracks whether the relay is reachable and replays
// pending queues when it becomes reachable again.
//
// Monitor holds the online flag, pending counts, and transition callbacks.
// Prober feeds it from periodic GET /health requests, and NetlinkWatcher
// asks for an immediate re-probe whenever the kernel reports a network
// interface change. The watcher also relays video device hot-plug events so
// the scanner can react to a camera being unplugged.
package connectivity
