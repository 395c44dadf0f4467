package timefmt

import (
	"strings"
	"time"

	"github.com/Nikhil-Sorout/TravelNEarn-sub000/internal/errs"
)

// Placeholder is what the UI layer shows for unparseable input.
const Placeholder = "N/A"

const (
	dateLayout = "Jan 2, 2006"
	timeLayout = "3:04 PM"
	dayLayout  = "Monday"
)

// Normalized is the canonical local-display form of a server timestamp.
// RawTimestamp keeps the ISO source when one is known, so a repeated
// Normalize re-derives from it instead of re-interpreting display strings.
type Normalized struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	Day          string `json:"day"`
	RawTimestamp string `json:"rawTimestamp,omitempty"`
}

// Normalizer converts heterogeneous server time representations into
// Normalized, in the given display zone. Normalize is pure and idempotent.
type Normalizer struct {
	loc *time.Location
}

func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

// Normalize handles, in priority order:
//  1. an already-shaped object carrying a raw ISO source -> re-derive from it;
//  2. a UTC ISO-8601 string -> convert to the display zone;
//  3. a pre-formatted object without a raw source -> pass through (drop seconds),
//     never re-interpreted as UTC so the calendar date cannot shift;
//  4. a bare clock string ("7:45 PM") -> parsed directly;
//  5. anything else -> best-effort parse, else a format error.
func (n *Normalizer) Normalize(raw any) (Normalized, error) {
	switch v := raw.(type) {
	case Normalized:
		return n.fromShaped(v)
	case *Normalized:
		if v == nil {
			return Normalized{}, errs.Format(nil, "nil timestamp object")
		}
		return n.fromShaped(*v)
	case map[string]any:
		return n.fromMap(v)
	case time.Time:
		return n.fromTime(v, v.UTC().Format(time.RFC3339)), nil
	case string:
		return n.fromString(v)
	default:
		return Normalized{}, errs.Format(nil, "unsupported timestamp type")
	}
}

// NormalizeOrPlaceholder never fails: format errors degrade to "N/A" fields.
func (n *Normalizer) NormalizeOrPlaceholder(raw any) Normalized {
	out, err := n.Normalize(raw)
	if err != nil {
		return Normalized{Date: Placeholder, Time: Placeholder, Day: Placeholder}
	}
	return out
}

func (n *Normalizer) fromShaped(v Normalized) (Normalized, error) {
	if v.RawTimestamp != "" {
		if t, ok := parseISO(v.RawTimestamp); ok {
			return n.fromTime(t, v.RawTimestamp), nil
		}
		return Normalized{}, errs.Format(nil, "bad rawTimestamp: "+v.RawTimestamp)
	}
	// Уже локализованный объект без источника: не трогаем дату, только чистим секунды.
	v.Time = dropSeconds(v.Time)
	return v, nil
}

func (n *Normalizer) fromMap(m map[string]any) (Normalized, error) {
	v := Normalized{
		Date: stringField(m, "date"),
		Time: stringField(m, "time"),
		Day:  stringField(m, "day"),
	}
	if src := stringField(m, "rawTimestamp"); src != "" {
		v.RawTimestamp = src
	} else if src := stringField(m, "isoString"); src != "" {
		v.RawTimestamp = src
	}
	if v.Date == "" && v.Time == "" && v.RawTimestamp == "" {
		return Normalized{}, errs.Format(nil, "timestamp object has no usable fields")
	}
	return n.fromShaped(v)
}

func (n *Normalizer) fromString(s string) (Normalized, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Normalized{}, errs.Format(nil, "empty timestamp")
	}
	if looksISO(s) {
		if t, ok := parseISO(s); ok {
			return n.fromTime(t, s), nil
		}
		return Normalized{}, errs.Format(nil, "bad ISO timestamp: "+s)
	}
	// Голая локальная строка вида "7:45 PM" — считаем сегодняшним днём.
	for _, layout := range []string{timeLayout, "3:04:05 PM", "15:04", "15:04:05"} {
		if clock, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			now := time.Now().In(n.loc)
			t := time.Date(now.Year(), now.Month(), now.Day(),
				clock.Hour(), clock.Minute(), 0, 0, n.loc)
			return Normalized{
				Date: t.Format(dateLayout),
				Time: t.Format(timeLayout),
				Day:  t.Format(dayLayout),
			}, nil
		}
	}
	// Best effort for remaining shapes the backend has been seen emitting.
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return Normalized{
				Date: t.Format(dateLayout),
				Time: t.Format(timeLayout),
				Day:  t.Format(dayLayout),
			}, nil
		}
	}
	return Normalized{}, errs.Format(nil, "unparseable timestamp: "+s)
}

func (n *Normalizer) fromTime(t time.Time, source string) Normalized {
	lt := t.In(n.loc)
	return Normalized{
		Date:         lt.Format(dateLayout),
		Time:         lt.Format(timeLayout),
		Day:          lt.Format(dayLayout),
		RawTimestamp: source,
	}
}

// looksISO matches date+T strings with or without a zone suffix; zone-less
// timestamps from the backend are UTC, like their suffixed siblings.
func looksISO(s string) bool {
	return strings.Contains(s, "T") && strings.Count(s, "-") >= 2
}

func parseISO(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// dropSeconds turns "11:38:59 PM" into "11:38 PM"; unknown shapes pass through.
func dropSeconds(s string) string {
	if t, err := time.Parse("3:04:05 PM", s); err == nil {
		return t.Format(timeLayout)
	}
	if t, err := time.Parse("15:04:05", s); err == nil {
		return t.Format("15:04")
	}
	return s
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
