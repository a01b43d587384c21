package connectivity

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
)

// DeviceEvent describes a video device appearing or disappearing.
type DeviceEvent struct {
	Action string
	Device string
}

// NetlinkWatcher listens for kernel uevents. Network interface changes call
// onNetwork so the prober re-checks at once instead of waiting out its
// interval; video4linux add/remove events go to onCamera.
type NetlinkWatcher struct {
	logger    *slog.Logger
	onNetwork func()
	onCamera  func(DeviceEvent)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewNetlinkWatcher builds a watcher. Either callback may be nil.
func NewNetlinkWatcher(logger *slog.Logger, onNetwork func(), onCamera func(DeviceEvent)) *NetlinkWatcher {
	return &NetlinkWatcher{
		logger:    logging.NewComponentLogger(logger, "netlink"),
		onNetwork: onNetwork,
		onCamera:  onCamera,
	}
}

// Start begins listening. Failing to open the socket is logged and ignored;
// the prober's interval still detects reconnects.
func (w *NetlinkWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.logger.Warn("failed to connect to netlink socket; reconnects will be noticed on the probe interval",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the station may open netlink sockets"),
			logging.String(logging.FieldImpact, "slower reconnect detection and no camera hot-plug events"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.loop(ctx, conn, quit)

	w.logger.Info("netlink watcher started",
		logging.String(logging.FieldEventType, "netlink_watcher_started"),
	)
	return nil
}

// Stop shuts the watcher down. It is safe to call more than once.
func (w *NetlinkWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false

	w.logger.Info("netlink watcher stopped",
		logging.String(logging.FieldEventType, "netlink_watcher_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *NetlinkWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *NetlinkWatcher) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(events, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			w.handleEvent(uevent)
		case err := <-errs:
			w.logger.Warn("netlink watcher error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_watcher_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "reconnect detection falls back to the probe interval"),
			)
		}
	}
}

// buildMatcher accepts network interface changes and video device hot-plug.
func buildMatcher() netlink.Matcher {
	netActions := "add|remove|change|online|offline|move"
	videoActions := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &netActions,
		Env:    map[string]string{"SUBSYSTEM": "^net$"},
	})
	rules.AddRule(netlink.RuleDefinition{
		Action: &videoActions,
		Env:    map[string]string{"SUBSYSTEM": "^video4linux$"},
	})
	return rules
}

func (w *NetlinkWatcher) handleEvent(uevent netlink.UEvent) {
	switch uevent.Env["SUBSYSTEM"] {
	case "net":
		w.logger.Debug("network interface changed",
			logging.String("action", string(uevent.Action)),
			logging.String("interface", uevent.Env["INTERFACE"]),
		)
		if w.onNetwork != nil {
			w.onNetwork()
		}
	case "video4linux":
		device := extractDeviceName(uevent)
		if device == "" {
			w.logger.Debug("ignoring video event without device name",
				logging.String("action", string(uevent.Action)),
				logging.String("kobj", uevent.KObj),
			)
			return
		}
		w.logger.Info("video device changed",
			logging.String(logging.FieldEventType, "camera_hotplug"),
			logging.String("device", device),
			logging.String("action", string(uevent.Action)),
		)
		if w.onCamera != nil {
			w.onCamera(DeviceEvent{Action: string(uevent.Action), Device: device})
		}
	}
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			return "/dev/" + devname
		}
		return devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
