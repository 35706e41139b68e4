// Package relay republishes merged-sequence updates on a NATS subject so
// renderers outside the process can consume the view without speaking the
// sync protocol.
package relay

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nuha.dev/gpsview/internal/pubsub"
	"nuha.dev/gpsview/internal/track"
	"nuha.dev/gpsview/internal/wire"
)

type Relay struct {
	logger  zerolog.Logger
	nc      *nats.Conn
	subject string
	updates *pubsub.Topic[[]wire.Point]
	sub     *pubsub.Sub[[]wire.Point]
}

func New(url, subject string, buffer *track.Buffer) (*Relay, error) {
	nc, err := nats.Connect(url, nats.Name("gpsview-relay"))
	if err != nil {
		return nil, err
	}
	r := &Relay{nc: nc, subject: subject}
	r.logger = log.With().Str("module", "relay").Logger()
	r.updates = buffer.Updates()
	r.sub = r.updates.SubscribeReplay(16)
	go r.loop()
	return r, nil
}

func (r *Relay) loop() {
	for pts := range r.sub.C() {
		b, err := json.Marshal(pts)
		if err != nil {
			r.logger.Warn().Err(err).Msg("failed to encode merged sequence")
			continue
		}
		if err := r.nc.Publish(r.subject, b); err != nil {
			r.logger.Warn().Err(err).Msg("failed to publish merged sequence")
		}
	}
}

func (r *Relay) Close() {
	r.updates.Unsubscribe(r.sub)
	r.nc.Drain()
}
