package validation

import "sync"

// History keeps the most recent reports in memory so operators can see a
// trend without hitting the report store. Bounded and safe for concurrent
// use.
type History struct {
	mu      sync.RWMutex
	reports []Report
	limit   int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 20
	}
	return &History{limit: limit}
}

// Add appends a report, evicting the oldest entry once the limit is hit.
func (h *History) Add(report Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, report)
	if len(h.reports) > h.limit {
		h.reports = h.reports[len(h.reports)-h.limit:]
	}
}

// Latest returns the newest report, if any.
func (h *History) Latest() (Report, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.reports) == 0 {
		return Report{}, false
	}
	return h.reports[len(h.reports)-1], true
}

// List returns reports newest first.
func (h *History) List() []Report {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Report, 0, len(h.reports))
	for i := len(h.reports) - 1; i >= 0; i-- {
		out = append(out, h.reports[i])
	}
	return out
}
