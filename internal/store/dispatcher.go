package store

import "sync"

// Dispatcher runs submitted callbacks one at a time, in submission order, on
// a goroutine it starts on demand. Each watch owns one so a slow subscriber
// never blocks the writer or other subscribers.
type Dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	stopped bool
}

// Submit queues fn. It is dropped if the dispatcher has been stopped.
func (d *Dispatcher) Submit(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.queue = append(d.queue, fn)
	if !d.running {
		d.running = true
		go d.drain()
	}
}

// Stop discards queued callbacks. A callback already running completes.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.queue = nil
}

// Stopped reports whether Stop has been called
func (d *Dispatcher) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if d.stopped || len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		fn()
	}
}
