// Package track reconciles two independently-arriving point sources, a
// one-shot historical batch and an unbounded live stream, into a single
// ordered duplicate-free sequence.
package track

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nuha.dev/gpsview/internal/pubsub"
	"nuha.dev/gpsview/internal/wire"
)

// Normalize rounds coordinates to 6 decimal places so repeated
// transmissions of the same reading compare equal despite float noise.
func Normalize(p wire.Point) wire.Point {
	p.Latitude = round6(p.Latitude)
	p.Longitude = round6(p.Longitude)
	return p
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}

// Key is the identity fingerprint used for de-duplication: normalized
// coordinates plus the raw timestamp string (empty when absent).
func Key(p wire.Point) string {
	p = Normalize(p)
	return strconv.FormatFloat(p.Latitude, 'f', 6, 64) + "," +
		strconv.FormatFloat(p.Longitude, 'f', 6, 64) + "," + p.Timestamp
}

// Buffer holds the historical buffer H, the live buffer L and the derived
// merged buffer M. Every mutation is atomic under one lock and recomputes
// M before any observer can read it.
type Buffer struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	hist     []wire.Point
	histKeys map[string]bool
	live     []wire.Point
	liveKeys map[string]bool
	merged   []wire.Point
	updates  *pubsub.Topic[[]wire.Point]
}

func NewBuffer() *Buffer {
	b := &Buffer{}
	b.logger = log.With().Str("module", "track").Logger()
	b.histKeys = make(map[string]bool)
	b.liveKeys = make(map[string]bool)
	b.updates = pubsub.NewTopic[[]wire.Point]()
	return b
}

// Updates broadcasts a snapshot of the merged sequence after every
// mutation; subscribe with replay to start from the current view.
func (b *Buffer) Updates() *pubsub.Topic[[]wire.Point] {
	return b.updates
}

// ReplaceHistorical discards the previous historical buffer wholesale and
// rebuilds it from the batch. Duplicates within the batch are dropped,
// first occurrence wins; the previous H is never consulted.
func (b *Buffer) ReplaceHistorical(points []wire.Point) {
	b.mu.Lock()
	b.hist = b.hist[:0]
	b.histKeys = make(map[string]bool, len(points))
	for _, p := range points {
		p = Normalize(p)
		k := Key(p)
		if b.histKeys[k] {
			continue
		}
		b.histKeys[k] = true
		b.hist = insertSorted(b.hist, p)
	}
	b.recompute()
	// published under the lock so snapshots go out in mutation order
	b.updates.Publish(b.snapshot())
	n := len(b.hist)
	b.mu.Unlock()
	b.logger.Debug().Int("points", n).Msg("historical buffer replaced")
}

// AppendLive inserts one live point in timestamp order. A point whose
// identity key is already present is a no-op; the return value reports
// whether the point was admitted.
func (b *Buffer) AppendLive(p wire.Point) bool {
	p = Normalize(p)
	k := Key(p)
	b.mu.Lock()
	if b.liveKeys[k] {
		b.mu.Unlock()
		return false
	}
	b.liveKeys[k] = true
	b.live = insertSorted(b.live, p)
	b.recompute()
	b.updates.Publish(b.snapshot())
	b.mu.Unlock()
	return true
}

// Reset clears H, L, M and both identity indexes atomically.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.hist = nil
	b.histKeys = make(map[string]bool)
	b.live = nil
	b.liveKeys = make(map[string]bool)
	b.merged = nil
	b.updates.Publish([]wire.Point{})
	b.mu.Unlock()
	b.logger.Debug().Msg("buffer reset")
}

// Current returns a copy of the merged sequence.
func (b *Buffer) Current() []wire.Point {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

func (b *Buffer) snapshot() []wire.Point {
	out := make([]wire.Point, len(b.merged))
	copy(out, b.merged)
	return out
}

// recompute rebuilds M from scratch: H, then the strictly-newer tail of
// L, deduplicated by identity key with the first occurrence winning. H is
// an authoritative batch for a closed time range, so live points at or
// before its cutover timestamp are not re-admitted even if the live feed
// echoed them independently. Caller holds the lock.
func (b *Buffer) recompute() {
	var cut time.Time
	var cutKnown bool
	if len(b.hist) > 0 {
		cut, cutKnown = wire.ParseTimestamp(b.hist[len(b.hist)-1].Timestamp)
	}
	m := make([]wire.Point, 0, len(b.hist)+len(b.live))
	seen := make(map[string]bool, len(b.hist)+len(b.live))
	for _, p := range b.hist {
		k := Key(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		m = append(m, p)
	}
	for _, p := range b.live {
		if len(b.hist) > 0 {
			t, ok := wire.ParseTimestamp(p.Timestamp)
			if !ok {
				continue
			}
			if cutKnown && !t.After(cut) {
				continue
			}
		}
		k := Key(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		m = append(m, p)
	}
	b.merged = m
}

// insertSorted places p by binary search over parsed timestamps; a
// missing or unparseable timestamp sorts as the minimum value. Equal
// timestamps keep arrival order.
func insertSorted(seq []wire.Point, p wire.Point) []wire.Point {
	pt, _ := wire.ParseTimestamp(p.Timestamp)
	i := sort.Search(len(seq), func(i int) bool {
		t, _ := wire.ParseTimestamp(seq[i].Timestamp)
		return t.After(pt)
	})
	seq = append(seq, wire.Point{})
	copy(seq[i+1:], seq[i:])
	seq[i] = p
	return seq
}
