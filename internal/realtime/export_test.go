package realtime

// EdgeLocksHeld exposes the number of live per-user edge lock entries.
func EdgeLocksHeld(p *Presence) int { return p.edges.held() }
