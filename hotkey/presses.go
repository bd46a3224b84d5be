package hotkey

import "time"

// Presses turns hotkey presses into toggles. A tap toggles once. A press
// held longer than hold toggles again on release, so holding the key
// records for as long as it is down.
type Presses struct {
	toggles chan struct{}
	stop    chan struct{}
}

func NewPresses(hk Hotkey, hold time.Duration) *Presses {
	p := &Presses{
		toggles: make(chan struct{}, 4),
		stop:    make(chan struct{}),
	}
	go p.run(hk, hold)
	return p
}

func (p *Presses) Toggles() <-chan struct{} { return p.toggles }

func (p *Presses) Close() { close(p.stop) }

func (p *Presses) emit() bool {
	select {
	case <-p.stop:
		return false
	default:
	}
	select {
	case p.toggles <- struct{}{}:
		return true
	case <-p.stop:
		return false
	}
}

func (p *Presses) run(hk Hotkey, hold time.Duration) {
	for {
		select {
		case <-hk.Keydown():
		case <-p.stop:
			return
		}
		if !p.emit() {
			return
		}

		timer := time.NewTimer(hold)
		select {
		case <-hk.Keyup():
			timer.Stop()
		case <-timer.C:
			select {
			case <-hk.Keyup():
			case <-p.stop:
				return
			}
			if !p.emit() {
				return
			}
		case <-p.stop:
			timer.Stop()
			return
		}
	}
}
