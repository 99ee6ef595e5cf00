package domain

import "time"

// SentimentSignal is a scored sentiment event handed to the coordinator by a
// monitoring source. It is consumed once and never persisted by the core; the
// originating post and analysis belong to the monitoring subsystem.
type SentimentSignal struct {
	Score      int    // 0..10, 5 is neutral
	SourceRef  string // opaque reference (post id, content hash)
	SourceName string // which monitor produced it
	ReceivedAt time.Time
}
