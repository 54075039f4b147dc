package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits a liveness event at a fixed interval while the proxy
// serves. A trace with heartbeats but no server events means the host went
// quiet, not that the proxy hung.
type Heartbeat struct {
	tracer Tracer
	status func() string
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// StartHeartbeat starts the heartbeat goroutine. status, when not nil, is
// called on every beat and its result becomes the event detail. It returns
// nil when tracing is disabled or interval is not positive.
func StartHeartbeat(tracer Tracer, interval time.Duration, status func() string) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer: tracer,
		status: status,
		stop:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run(interval)
	return h
}

func (h *Heartbeat) run(interval time.Duration) {
	defer h.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var beats uint64
	for {
		select {
		case <-ticker.C:
			beats++
			ev := &Event{
				Time:  time.Now(),
				Seq:   NextSeq(),
				Kind:  KindHeartbeat,
				Scope: ScopeServer,
				Name:  "heartbeat",
				Extra: map[string]string{"beat": strconv.FormatUint(beats, 10)},
			}
			if h.status != nil {
				ev.Detail = h.status()
			}
			h.tracer.Emit(ev)
		case <-h.stop:
			return
		}
	}
}

// Stop ends the heartbeat and waits for the goroutine. It is safe on a nil
// Heartbeat and safe to call twice.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	h.wg.Wait()
}
