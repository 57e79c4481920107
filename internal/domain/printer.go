package domain

// PrinterState is the slice of a printer record the watch decision needs.
type PrinterState struct {
	ID              PrinterID
	WatchingEnabled bool
	Printing        bool
	AlertMuted      bool
	OwnerIsPro      bool
	OwnerDHBalance  float64
}

// ShouldWatch reports whether the agent should stream frames for failure
// detection: only while printing, with watching on and alerts not muted, and
// only for owners that can pay for detection hours.
func (p PrinterState) ShouldWatch() bool {
	if !p.WatchingEnabled || !p.Printing || p.AlertMuted {
		return false
	}
	return p.OwnerIsPro || p.OwnerDHBalance > 0
}
