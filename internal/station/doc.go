// Package station wires the scan station together and owns its lifecycle.
//
// Open acquires the single-instance lock and builds every component in
// dependency order: queue store, queues, connectivity monitor, submission
// pipeline, prober and netlink watcher, then (when capture is requested)
// camera, scanner and session aggregator. Close tears them down in reverse.
package station
