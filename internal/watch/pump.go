package watch

// Pump drains a watcher's events on the goroutine that owns the project.
type Pump struct {
	events <-chan Event
	seen   map[string]int
	batch  []Event
}

// NewPump returns a pump reading from events, usually Watcher.Events.
func NewPump(events <-chan Event) *Pump {
	return &Pump{events: events, seen: make(map[string]int)}
}

// Drain takes every event queued so far, without blocking, and calls handle
// once per path in arrival order. When a path was posted several times the
// last operation is passed. Drain returns the number of paths handled.
func (p *Pump) Drain(handle func(Event)) int {
	if p.events == nil {
		return 0
	}

	clear(p.seen)
	p.batch = p.batch[:0]

loop:
	for {
		select {
		case ev := <-p.events:
			if i, ok := p.seen[ev.Path]; ok {
				p.batch[i].Op = ev.Op
				continue
			}
			p.seen[ev.Path] = len(p.batch)
			p.batch = append(p.batch, ev)
		default:
			break loop
		}
	}

	for _, ev := range p.batch {
		handle(ev)
	}
	return len(p.batch)
}
