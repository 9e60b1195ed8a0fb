package distributor

import "time"

// minuteTicker fires once per wall-clock minute boundary (:00), rather than
// once per minute of wall-clock elapsed since process start.
type minuteTicker struct {
	C    <-chan time.Time
	stop chan struct{}
}

func newMinuteTicker() *minuteTicker {
	c := make(chan time.Time, 1)
	stop := make(chan struct{})
	t := &minuteTicker{C: c, stop: stop}

	go func() {
		for {
			now := time.Now()
			next := now.Truncate(time.Minute).Add(time.Minute)
			timer := time.NewTimer(next.Sub(now))
			select {
			case fired := <-timer.C:
				select {
				case c <- fired:
				default:
				}
			case <-stop:
				timer.Stop()
				return
			}
		}
	}()

	return t
}

func (t *minuteTicker) Stop() {
	close(t.stop)
}
