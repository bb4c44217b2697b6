// Package schedule turns posting times into daily cron schedules and picks random intervals.
package schedule

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Entry is a posting time of day
type Entry struct {
	Hour   int
	Minute int
}

// ParseTime parses a 24h "HH:MM" string
func ParseTime(s string) (Entry, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return Entry{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return Entry{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return Entry{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Entry{Hour: hour, Minute: minute}, nil
}

// ParseTimes parses a list of "HH:MM" strings
func ParseTimes(values []string) ([]Entry, error) {
	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		e, err := ParseTime(v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// String formats the entry as HH:MM
func (e Entry) String() string {
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}

// CronSpec returns the standard cron expression firing daily at this time
func (e Entry) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", e.Minute, e.Hour)
}

// Schedule returns the daily cron schedule for this entry
func (e Entry) Schedule() (cron.Schedule, error) {
	return cron.ParseStandard(e.CronSpec())
}

// Plan tracks the next fire time of every entry
type Plan struct {
	entries   []Entry
	schedules []cron.Schedule
	next      []time.Time
}

// NewPlan builds a plan whose first fire times come after now
func NewPlan(entries []Entry, now time.Time) (*Plan, error) {
	p := &Plan{
		entries:   entries,
		schedules: make([]cron.Schedule, len(entries)),
		next:      make([]time.Time, len(entries)),
	}
	for i, e := range entries {
		s, err := e.Schedule()
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e, err)
		}
		p.schedules[i] = s
		p.next[i] = s.Next(now)
	}
	return p, nil
}

// Entries returns the entries the plan was built from
func (p *Plan) Entries() []Entry {
	return p.entries
}

// Due returns the entries whose fire time has been reached
func (p *Plan) Due(now time.Time) []Entry {
	var due []Entry
	for i, e := range p.entries {
		if !now.Before(p.next[i]) {
			due = append(due, e)
		}
	}
	return due
}

// Advance moves every due entry to its next fire time after now
func (p *Plan) Advance(now time.Time) {
	for i := range p.entries {
		if !now.Before(p.next[i]) {
			p.next[i] = p.schedules[i].Next(now)
		}
	}
}

// NextRun returns the earliest upcoming fire time, zero for an empty plan
func (p *Plan) NextRun() time.Time {
	var earliest time.Time
	for _, t := range p.next {
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

// RandomInterval returns a uniform duration in [minMinutes, maxMinutes] minutes, at second resolution
func RandomInterval(rng *rand.Rand, minMinutes, maxMinutes int) time.Duration {
	lo := int64(minMinutes) * 60
	hi := int64(maxMinutes) * 60
	if hi <= lo {
		return time.Duration(lo) * time.Second
	}
	return time.Duration(lo+rng.Int64N(hi-lo+1)) * time.Second
}

// SymmetricDifference counts the times present in exactly one of the two lists
func SymmetricDifference(a, b []string) int {
	inA := make(map[string]bool, len(a))
	for _, v := range a {
		inA[v] = true
	}
	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[v] = true
	}

	diff := 0
	for v := range inA {
		if !inB[v] {
			diff++
		}
	}
	for v := range inB {
		if !inA[v] {
			diff++
		}
	}
	return diff
}

// Format renders entries as sorted HH:MM strings
func Format(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	sort.Strings(out)
	return out
}

// GenerateRandom picks n distinct random times of day, sorted
func GenerateRandom(rng *rand.Rand, n int) []Entry {
	if n > 24*60 {
		n = 24 * 60
	}
	minutes := rng.Perm(24 * 60)[:n]
	sort.Ints(minutes)

	entries := make([]Entry, n)
	for i, m := range minutes {
		entries[i] = Entry{Hour: m / 60, Minute: m % 60}
	}
	return entries
}
