package gnss

import (
	"time"

	"github.com/charmbracelet/log"

	"gnssrover/internal/nmea"
)

// partial accumulates the two halves of one GNSS epoch. GGA and GST arrive
// as separate sentences for the same fix time, in no guaranteed order.
type partial struct {
	time time.Time

	hasCoordinates bool
	lat, lon       float64
	alt, geoidSep  float64

	hasAccuracies       bool
	latSD, lonSD, altSD float64
}

func (p *partial) complete() bool {
	return p.hasCoordinates && p.hasAccuracies
}

func (p *partial) position() Position {
	return Position{
		Time:              p.time,
		Latitude:          p.lat,
		Longitude:         p.lon,
		Altitude:          p.alt,
		EllipsoidHeight:   p.alt + p.geoidSep,
		LatitudeAccuracy:  p.latSD,
		LongitudeAccuracy: p.lonSD,
		VerticalAccuracy:  p.altSD,
	}
}

// Assembler merges coordinate and accuracy reports sharing a fix time into
// complete positions. A report with a strictly newer fix time replaces the
// current partial; an older one is discarded as a stale duplicate; an equal
// one merges. A position is emitted every time the current epoch is, or
// stays, complete.
//
// Assembler is not safe for concurrent use; the owning link's read loop is
// its only caller.
type Assembler struct {
	onPosition func(Position)
	metrics    Collector

	cur      *partial
	datum    string
	firstFix bool
}

func NewAssembler(onPosition func(Position), metrics Collector) *Assembler {
	if metrics == nil {
		metrics = NopCollector{}
	}
	return &Assembler{
		onPosition: onPosition,
		metrics:    metrics,
		datum:      nmea.DatumWGS84,
	}
}

// Apply feeds one decoded report into the state machine.
func (a *Assembler) Apply(rep nmea.Report) {
	switch r := rep.(type) {
	case nmea.Coordinates:
		p := a.epoch(r.Time)
		if p == nil {
			return
		}
		p.hasCoordinates = true
		p.lat, p.lon = r.Lat, r.Lon
		p.alt, p.geoidSep = r.Alt, r.GeoidSep
		a.emitIfComplete(p)

	case nmea.Accuracies:
		p := a.epoch(r.Time)
		if p == nil {
			return
		}
		p.hasAccuracies = true
		p.latSD, p.lonSD, p.altSD = r.LatSD, r.LonSD, r.AltSD
		a.emitIfComplete(p)

	case nmea.DatumChange:
		// Only WGS84 output is supported. Anything else is announced but
		// never applied, and decoding continues under the previous datum.
		if r.Datum != nmea.DatumWGS84 {
			log.Error("unsupported datum announced, keeping previous", "datum", r.Datum, "current", a.datum)
			return
		}
		a.datum = r.Datum
	}
}

// epoch returns the partial the report at t belongs to: the current one for
// an equal fix time, a fresh one for a strictly newer time, nil for a stale
// report.
func (a *Assembler) epoch(t time.Time) *partial {
	if a.cur != nil {
		if t.Before(a.cur.time) {
			a.metrics.StaleReportDiscarded()
			return nil
		}
		if t.Equal(a.cur.time) {
			return a.cur
		}
	}
	a.cur = &partial{time: t}
	return a.cur
}

func (a *Assembler) emitIfComplete(p *partial) {
	if !p.complete() {
		return
	}
	pos := p.position()
	if !a.firstFix {
		a.firstFix = true
		a.metrics.FirstFix(pos.Time)
	}
	a.metrics.PositionEmitted()
	if a.onPosition != nil {
		a.onPosition(pos)
	}
}
