package metrics

import (
	"context"
	"time"
)

// Collector records battery metrics produced by the monitor chain.
type Collector interface {
	RecordSample(ctx context.Context, sample *BatterySample) error
	RecordShutdown(ctx context.Context, event *ShutdownEvent) error
	Close() error
}

// Repository stores metrics records.
type Repository interface {
	RecordSample(sample *BatterySample) error
	RecordShutdown(event *ShutdownEvent) error
	Close() error
}

// BatterySample summarizes one metrics window.
type BatterySample struct {
	Timestamp   time.Time
	Level       int
	Temperature int // deci-°C
	CycleCount  int
	Resistance  Range // µΩ
	OCV         Range // µV
}

// Range is the observed minimum and maximum of a reading over a window.
type Range struct {
	Min     int64
	Max     int64
	Samples int
}

// Observe returns r widened to include v.
func (r Range) Observe(v int64) Range {
	if r.Samples == 0 {
		return Range{Min: v, Max: v, Samples: 1}
	}

	return Range{Min: min(r.Min, v), Max: max(r.Max, v), Samples: r.Samples + 1}
}

// ShutdownEvent records the battery voltage when the device is about to
// power off on an empty battery.
type ShutdownEvent struct {
	Timestamp  time.Time
	VoltageAvg int64 // µV
	Level      int
}
