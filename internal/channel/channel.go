// Package channel owns one logical persistent connection to a named
// endpoint: it dials, reads, fans out inbound frames, and reconnects with
// bounded exponential backoff when the transport drops.
package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nuha.dev/gpsview/internal/pubsub"
)

const dialTimeout = 10 * time.Second

type Config struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxRetries bounds consecutive failed attempts; 0 means unbounded.
	MaxRetries int
}

type Channel struct {
	name   string
	url    string
	config Config
	dial   DialFunc
	logger zerolog.Logger

	messages *pubsub.Topic[json.RawMessage]
	states   *pubsub.Topic[State]

	mu      sync.Mutex
	tr      Transport
	st      State
	closing bool
	running bool
	restart bool
	attempt int
	closech chan struct{}
}

func New(name, url string, config Config) *Channel {
	return NewWithDial(name, url, config, DialWebsocket)
}

func NewWithDial(name, url string, config Config, dial DialFunc) *Channel {
	ch := &Channel{name: name, url: url, config: config, dial: dial}
	ch.logger = log.With().Str("module", "channel").Str("channel", name).Logger()
	ch.messages = pubsub.NewTopic[json.RawMessage]()
	ch.states = pubsub.NewTopic[State]()
	ch.st = Disconnected
	return ch
}

// Messages broadcasts every inbound frame. Subscribe with replay to also
// receive the last frame seen before attaching.
func (ch *Channel) Messages() *pubsub.Topic[json.RawMessage] {
	return ch.messages
}

// StateChanges broadcasts connection-state transitions; the last state is
// cached for replay subscribers.
func (ch *Channel) StateChanges() *pubsub.Topic[State] {
	return ch.states
}

func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.st
}

// Open starts the connect loop. It is idempotent while the loop runs; a
// channel that gave up after exhausting its retry budget (or was closed)
// is rearmed by calling Open again.
func (ch *Channel) Open() {
	ch.mu.Lock()
	if ch.running {
		// a loop winding down after Close must not swallow the rearm
		if ch.closing {
			ch.restart = true
		}
		ch.mu.Unlock()
		return
	}
	ch.running = true
	ch.closing = false
	ch.attempt = 0
	ch.closech = make(chan struct{})
	ch.mu.Unlock()
	go ch.run()
}

func (ch *Channel) run() {
	for {
		ch.setState(Connecting)
		dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		tr, err := ch.dial(dialCtx, ch.url)
		cancel()
		if err != nil {
			ch.mu.Lock()
			ch.attempt++
			failed := ch.attempt
			ch.mu.Unlock()
			ch.logger.Warn().Err(err).Int("attempt", failed).Msg("dial failed")
			ch.setState(Disconnected)
			if ch.config.MaxRetries > 0 && failed >= ch.config.MaxRetries {
				ch.logger.Error().Int("attempts", failed).Msg("retry budget exhausted, giving up")
				ch.stopped()
				return
			}
			if !ch.retry() {
				return
			}
			continue
		}
		ch.mu.Lock()
		if ch.closing {
			ch.mu.Unlock()
			tr.Close()
			ch.setState(Disconnected)
			ch.stopped()
			return
		}
		ch.tr = tr
		ch.attempt = 0
		ch.mu.Unlock()
		ch.setState(Connected)
		ch.logger.Info().Str("url", ch.url).Msg("connected")
		ch.readLoop(tr)
		ch.mu.Lock()
		ch.tr = nil
		ch.mu.Unlock()
		ch.setState(Disconnected)
		if !ch.retry() {
			return
		}
	}
}

func (ch *Channel) readLoop(tr Transport) {
	for {
		b, err := tr.Read(context.Background())
		if err != nil {
			ch.mu.Lock()
			closing := ch.closing
			ch.mu.Unlock()
			if closing {
				ch.logger.Info().Msg("connection closed by client")
			} else {
				ch.logger.Warn().Err(err).Msg("connection lost")
			}
			tr.Close()
			return
		}
		ch.messages.Publish(json.RawMessage(b))
	}
}

// retry sleeps the backoff delay for the current failure streak and
// reports whether the loop should dial again. An intentional close stops
// the loop; the delay schedule restarts from base after every successful
// connection because the attempt counter resets on connect.
func (ch *Channel) retry() bool {
	ch.mu.Lock()
	if ch.closing {
		ch.mu.Unlock()
		ch.stopped()
		return false
	}
	streak := ch.attempt
	if streak > 0 {
		streak--
	}
	delay := Backoff(streak, ch.config.BaseDelay, ch.config.MaxDelay)
	closech := ch.closech
	ch.mu.Unlock()
	ch.logger.Info().Dur("delay", delay).Msg("reconnecting after delay")
	select {
	case <-time.After(delay):
		return true
	case <-closech:
		ch.stopped()
		return false
	}
}

func (ch *Channel) stopped() {
	ch.mu.Lock()
	ch.running = false
	restart := ch.restart
	ch.restart = false
	ch.mu.Unlock()
	if restart {
		ch.Open()
	}
}

// Send writes v to the live transport. It reports failure instead of
// raising: while not connected every send is dropped with a warning.
func (ch *Channel) Send(v interface{}) bool {
	ch.mu.Lock()
	tr := ch.tr
	st := ch.st
	ch.mu.Unlock()
	if st != Connected || tr == nil {
		ch.logger.Warn().Stringer("state", st).Msg("send dropped, channel not connected")
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := tr.Write(ctx, v); err != nil {
		ch.logger.Warn().Err(err).Msg("send failed")
		return false
	}
	return true
}

// Close marks the closure as intentional and suppresses all further
// reconnection until Open is called again. It only signals the run loop;
// the loop itself publishes the final disconnected transition so
// observers never see states out of order.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closing {
		ch.mu.Unlock()
		return
	}
	ch.closing = true
	tr := ch.tr
	closech := ch.closech
	ch.mu.Unlock()
	if closech != nil {
		close(closech)
	}
	if tr != nil {
		tr.Close()
	}
}

func (ch *Channel) setState(s State) {
	ch.mu.Lock()
	// a connect that loses the race against Close stays unobserved; the
	// loop follows up with disconnected immediately
	if ch.st == s || (s == Connected && ch.closing) {
		ch.mu.Unlock()
		return
	}
	ch.st = s
	ch.mu.Unlock()
	ch.logger.Debug().Stringer("state", s).Msg("state change")
	ch.states.Publish(s)
}
