// ABOUTME: Polling device watcher for backends without hotplug callbacks
// ABOUTME: Diffs device lists and emits lost/changed events
package output

import (
	"context"
	"log"
	"time"
)

// DefaultWatchInterval is how often a Watcher polls when not told otherwise
const DefaultWatchInterval = time.Second

// Watcher polls a backend's device list and reports differences
type Watcher struct {
	backend  Backend
	interval time.Duration
	emit     func(Event)

	prev      map[DeviceID]DeviceInfo
	prevDef   DeviceID
	primed    bool
	errLogged bool
}

// NewWatcher creates a watcher that calls emit for every change
func NewWatcher(backend Backend, interval time.Duration, emit func(Event)) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{backend: backend, interval: interval, emit: emit}
}

// Run polls until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	w.Poll()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll takes one snapshot and emits events against the previous one.
// The first snapshot only primes the watcher.
func (w *Watcher) Poll() {
	devices, err := w.backend.Devices()
	if err != nil {
		if !w.errLogged {
			log.Printf("Device watcher: enumeration failed: %v", err)
			w.errLogged = true
		}
		return
	}
	w.errLogged = false

	current := make(map[DeviceID]DeviceInfo, len(devices))
	var def DeviceID
	for _, d := range devices {
		current[d.ID] = d
		if d.IsDefault {
			def = d.ID
		}
	}

	if w.primed {
		for id, old := range w.prev {
			now, ok := current[id]
			switch {
			case !ok:
				w.emit(Event{Kind: DeviceLost, ID: id})
			case old.SampleRate != 0 && now.SampleRate != 0 && old.SampleRate != now.SampleRate:
				w.emit(Event{Kind: DeviceChanged, ID: id})
			}
		}
		if def != w.prevDef {
			w.emit(Event{Kind: DeviceChanged, ID: DefaultID})
		}
	}

	w.prev = current
	w.prevDef = def
	w.primed = true
}
