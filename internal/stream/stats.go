package stream

// NoBoundary marks an unset session boundary: stats scope the whole list
// when not running, and stay empty while running (the boundary is assigned
// atomically with a run start, so a running session always has one).
const NoBoundary = -1

// ComputeStats aggregates token, tool, error, and timing figures over the
// scoped slice of the message list. It is a pure function of its inputs and
// is recomputed from scratch on every change: boundary moves invalidate any
// incremental sum, so correctness is bought with CPU.
func ComputeStats(messages []*ProcessedMessage, boundary int, running bool) SessionStats {
	var scope []*ProcessedMessage
	switch {
	case running && boundary >= 0:
		if boundary < len(messages) {
			scope = messages[boundary:]
		}
	case running:
		// Running with no boundary: the current run has produced nothing
		// attributable yet.
		return SessionStats{}
	default:
		scope = messages
	}

	var stats SessionStats
	stats.MessageCount = len(scope)

	for _, msg := range scope {
		accumulate(&stats, msg)
	}

	for _, msg := range scope {
		if msg.Timestamp.IsZero() {
			continue
		}
		t := msg.Timestamp
		if stats.StartTime == nil {
			stats.StartTime = &t
		}
		end := t
		stats.EndTime = &end
	}

	return stats
}

// accumulate folds one message and everything reachable beneath it —
// including nested subagent conversations — into the running totals.
func accumulate(stats *SessionStats, msg *ProcessedMessage) {
	stats.TotalTokens.add(msg.Usage)

	for _, tc := range msg.ToolCalls {
		stats.ToolCallCount++
		if tc.IsError {
			stats.ErrorCount++
		}
		if tc.IsSubagent {
			stats.SubagentCount++
		}
		for _, sub := range tc.SubagentMessages() {
			accumulate(stats, sub)
		}
	}
}
