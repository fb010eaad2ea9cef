package expansion

import "time"

type EventType string

const (
	EventExpand  EventType = "expand"
	EventSuggest EventType = "suggest"
)

// Event describes one served request. Events are published to the
// expansion-events topic and folded into the in-process Stats.
type Event struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Strategy  string    `json:"strategy,omitempty"`
	Documents int       `json:"documents"`
	Terms     []string  `json:"terms"`
	Consensus bool      `json:"consensus,omitempty"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyMs int64     `json:"latency_ms"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// NewExpandEvent summarises a served expansion. result may be nil when the
// request failed.
func NewExpandEvent(req Request, result *Result, cacheHit bool, latency time.Duration, requestID string) Event {
	e := Event{
		Type:      EventExpand,
		Query:     req.Query,
		Strategy:  req.Strategy,
		Documents: len(req.Documents),
		Consensus: req.Consensus,
		CacheHit:  cacheHit,
		LatencyMs: latency.Milliseconds(),
		Failed:    result == nil,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
	if result != nil {
		e.Documents = result.Documents
		e.Terms = make([]string, len(result.Terms))
		for i, t := range result.Terms {
			e.Terms[i] = t.Text
		}
	}
	return e
}
