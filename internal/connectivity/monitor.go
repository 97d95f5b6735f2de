// Package connectivity tracks whether the catalog API is reachable and
// whether the current link satisfies the wifi-only preference.
package connectivity

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Monitor is the process-wide view of network state. Reads are lock-free
// so the sync engine can sample it before every remote call.
type Monitor struct {
	online   atomic.Bool
	wifi     atomic.Bool
	wifiOnly atomic.Bool
	log      *slog.Logger

	mu        sync.Mutex
	listeners []func(online bool)
}

// NewMonitor creates a Monitor that starts online and on wifi, so a host
// without any probe behaves as always connected.
func NewMonitor(wifiOnly bool, logger *slog.Logger) *Monitor {
	m := &Monitor{log: logger}
	m.online.Store(true)
	m.wifi.Store(true)
	m.wifiOnly.Store(wifiOnly)
	return m
}

// NetworkAvailable reports the last known reachability.
func (m *Monitor) NetworkAvailable() bool {
	return m.online.Load()
}

// WifiOnlySatisfied is true unless the wifi-only preference is on and the
// current link is not wifi.
func (m *Monitor) WifiOnlySatisfied() bool {
	return !m.wifiOnly.Load() || m.wifi.Load()
}

// SetWifiOnly updates the bulk-download preference.
func (m *Monitor) SetWifiOnly(on bool) {
	m.wifiOnly.Store(on)
}

// SetWifi records whether the current link is wifi.
func (m *Monitor) SetWifi(on bool) {
	m.wifi.Store(on)
}

// SetNetwork records reachability. Listeners run synchronously, in
// registration order, only when the value actually flips.
func (m *Monitor) SetNetwork(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	m.log.Info("connectivity changed", "online", online)

	m.mu.Lock()
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

// OnChange registers fn to be called on every reachability flip. Typical use
// is triggering a refresh when the network comes back.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}
