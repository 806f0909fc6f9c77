package posts

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// TimestampKind records which wire shape a creation time was decoded from.
type TimestampKind uint8

const (
	KindMissing TimestampKind = iota
	KindNative
	KindDate
	KindString
	KindSeconds
	KindUnknown
)

const isoLayout = "2006-01-02T15:04:05.000Z"

// Timestamp is a creation time decoded once at the storage boundary. Missing and
// unrecognised values stay marked as such instead of being replaced by the current time.
type Timestamp struct {
	Kind TimestampKind
	Time time.Time
}

func (t Timestamp) Known() bool {
	return t.Kind != KindMissing && t.Kind != KindUnknown
}

// ISO renders the time like JavaScript's toISOString, or "" when unknown.
func (t Timestamp) ISO() string {
	if !t.Known() {
		return ""
	}
	return t.Time.UTC().Format(isoLayout)
}

// After orders known times before unknown ones.
func (t Timestamp) After(o Timestamp) bool {
	switch {
	case t.Known() && o.Known():
		return t.Time.After(o.Time)
	default:
		return t.Known() && !o.Known()
	}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Known() {
		return []byte("null"), nil
	}
	return json.Marshal(t.ISO())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*t = Timestamp{Kind: KindMissing}
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = DecodeTimestamp(v)
	return nil
}

type asTimer interface {
	AsTime() time.Time
}

// DecodeTimestamp accepts every shape the document store has been seen to return for
// createdAt: a native timestamp with an AsTime conversion, a date value, an ISO-8601
// string and a serialized {_seconds, _nanoseconds} object.
func DecodeTimestamp(v any) Timestamp {
	switch x := v.(type) {
	case nil:
		return Timestamp{Kind: KindMissing}
	case asTimer:
		return Timestamp{Kind: KindNative, Time: x.AsTime().UTC()}
	case time.Time:
		if x.IsZero() {
			return Timestamp{Kind: KindMissing}
		}
		return Timestamp{Kind: KindDate, Time: x.UTC()}
	case *time.Time:
		if x == nil || x.IsZero() {
			return Timestamp{Kind: KindMissing}
		}
		return Timestamp{Kind: KindDate, Time: x.UTC()}
	case string:
		return decodeString(x)
	case map[string]any:
		return decodeSeconds(x)
	default:
		return Timestamp{Kind: KindUnknown}
	}
}

var stringLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func decodeString(s string) Timestamp {
	if s == "" {
		return Timestamp{Kind: KindMissing}
	}
	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Kind: KindString, Time: t.UTC()}
		}
	}
	return Timestamp{Kind: KindUnknown}
}

func decodeSeconds(m map[string]any) Timestamp {
	secRaw, ok := m["_seconds"]
	if !ok {
		secRaw, ok = m["seconds"]
	}
	if !ok {
		return Timestamp{Kind: KindUnknown}
	}
	sec, ok := toFloat(secRaw)
	if !ok {
		return Timestamp{Kind: KindUnknown}
	}

	nanosRaw, ok := m["_nanoseconds"]
	if !ok {
		nanosRaw = m["nanoseconds"]
	}
	nanos, _ := toFloat(nanosRaw)

	whole, frac := math.Modf(sec)
	t := time.Unix(int64(whole), int64(frac*1e9)+int64(nanos)).UTC()
	return Timestamp{Kind: KindSeconds, Time: t}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
