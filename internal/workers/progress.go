package workers

import "sync"

// Idle is the progress value reported while no run is active.
const Idle = -1

// Progress is a percentage shared by every worker of a run. Values only
// move forward until Reset.
type Progress struct {
	mu     sync.Mutex
	value  int
	nextID int
	subs   map[int]func(int)
}

func NewProgress() *Progress {
	return &Progress{value: Idle, subs: make(map[int]func(int))}
}

func (p *Progress) Value() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Set publishes percent unless it is lower than the current value. It
// reports whether the value changed.
func (p *Progress) Set(percent int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent <= p.value {
		return false
	}
	p.value = percent
	p.notify()
	return true
}

// Reset returns to Idle.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.value == Idle {
		return
	}
	p.value = Idle
	p.notify()
}

// Subscribe registers fn for every change. Callbacks run with the
// progress lock held and must not call back into Progress.
func (p *Progress) Subscribe(fn func(int)) (cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *Progress) notify() {
	for _, fn := range p.subs {
		fn(p.value)
	}
}

// Percent is round(completed/total*100); an empty run is complete.
func Percent(completed, total int) int {
	if total <= 0 {
		return 100
	}
	return (completed*100 + total/2) / total
}
