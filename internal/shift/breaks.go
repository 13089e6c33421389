// Package shift holds the plant's break calendar and computes how much
// configured break time overlaps an arbitrary window.
package shift

import (
	"time"

	"github.com/ersozo/re-dashboard/internal/domain"
)

// clock is a time of day in the plant's fixed offset.
type clock struct {
	hour   int
	minute int
}

// breakDef is a recurring daily break. A break whose end precedes its start
// spans midnight and ends on the following calendar day.
type breakDef struct {
	code  string
	start clock
	end   clock
}

var shiftBreaks = map[string]breakDef{
	"a": {code: "a", start: clock{10, 0}, end: clock{10, 15}},
	"b": {code: "b", start: clock{12, 0}, end: clock{12, 30}},
	"c": {code: "c", start: clock{16, 0}, end: clock{16, 15}},
	"d": {code: "d", start: clock{18, 0}, end: clock{18, 30}},
	"e": {code: "e", start: clock{20, 0}, end: clock{20, 30}},
	"f": {code: "f", start: clock{22, 0}, end: clock{22, 15}},
	"g": {code: "g", start: clock{0, 0}, end: clock{0, 30}},
	"h": {code: "h", start: clock{3, 0}, end: clock{3, 15}},
	"i": {code: "i", start: clock{5, 0}, end: clock{5, 30}},
}

var modeBreaks = map[domain.WorkingMode][]string{
	domain.Mode1: {"a", "b", "e", "f", "h", "i"},
	domain.Mode2: {"a", "b", "c", "f", "g", "h", "i"},
	domain.Mode3: {"a", "b", "c", "d", "f", "g", "h", "i"},
}

// Seconds returns the total break seconds overlapping the window for the
// given working mode. Unknown modes fall back to mode1. Each break occurrence
// is counted once even when it straddles a day boundary.
func Seconds(w domain.TimeWindow, mode domain.WorkingMode) float64 {
	codes, ok := modeBreaks[mode]
	if !ok {
		codes = modeBreaks[domain.Mode1]
	}

	start := w.Start.In(domain.Zone)
	end := w.End.In(domain.Zone)
	if !end.After(start) {
		return 0
	}

	var total float64
	for _, code := range codes {
		total += overlapSeconds(shiftBreaks[code], start, end)
	}
	return total
}

// overlapSeconds sums the break's overlap with [start, end] across every
// calendar day the window touches.
func overlapSeconds(br breakDef, start, end time.Time) float64 {
	var total float64
	for day := dateOf(start); !day.After(dateOf(end)); day = day.AddDate(0, 0, 1) {
		bs := at(day, br.start)
		be := at(day, br.end)
		if be.Before(bs) {
			// Wraps midnight: the break ends on the next day.
			be = be.AddDate(0, 0, 1)
		}
		os := bs
		if start.After(os) {
			os = start
		}
		oe := be
		if end.Before(oe) {
			oe = end
		}
		if oe.After(os) {
			total += oe.Sub(os).Seconds()
		}
	}
	return total
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, domain.Zone)
}

func at(day time.Time, c clock) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, domain.Zone)
}
