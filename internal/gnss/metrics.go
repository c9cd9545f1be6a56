package gnss

import "time"

// Collector receives diagnostic counters from the decoding pipeline.
// Implementations must be safe for concurrent use.
type Collector interface {
	// FirstFix fires once per assembler lifetime, when the first complete
	// position is emitted.
	FirstFix(t time.Time)
	PositionEmitted()
	SentenceRejected()
	StaleReportDiscarded()
}

// NopCollector discards all metrics. It is the default when no collector is
// injected.
type NopCollector struct{}

func (NopCollector) FirstFix(time.Time)    {}
func (NopCollector) PositionEmitted()      {}
func (NopCollector) SentenceRejected()     {}
func (NopCollector) StaleReportDiscarded() {}
