package failover

import "time"

// Episode tracks the current or last period spent on LTE.
type Episode struct {
	Active bool      `json:"active"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Count  uint32    `json:"count"`
}

func (e *Episode) begin(now time.Time) bool {
	if e.Active {
		return false
	}
	e.Active = true
	e.Start = now
	e.End = time.Time{}
	e.Count++
	return true
}

func (e *Episode) finish(now time.Time) bool {
	if !e.Active {
		return false
	}
	e.Active = false
	e.End = now
	return true
}

// Duration is the length of the current or last episode.
func (e Episode) Duration(now time.Time) time.Duration {
	switch {
	case e.Start.IsZero():
		return 0
	case e.Active:
		return now.Sub(e.Start)
	default:
		return e.End.Sub(e.Start)
	}
}
