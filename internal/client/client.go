// Package client wires the four logical channels to the reconciliation
// buffer and exposes the merged view plus the request surface.
package client

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nuha.dev/gpsview/internal/channel"
	"nuha.dev/gpsview/internal/pubsub"
	"nuha.dev/gpsview/internal/request"
	"nuha.dev/gpsview/internal/track"
	"nuha.dev/gpsview/internal/wire"
)

type Client struct {
	logger   zerolog.Logger
	config   Config
	validate *validator.Validate
	buffer   *track.Buffer

	live   *channel.Channel
	logch  *channel.Channel
	cmd    *channel.Channel
	answer *channel.Channel
	corr   *request.Correlator

	liveSub *pubsub.Sub[json.RawMessage]
	logSub  *pubsub.Sub[json.RawMessage]
}

func New(config Config) *Client {
	c := &Client{config: config}
	c.logger = log.With().Str("module", "client").Logger()
	c.validate = validator.New()
	c.buffer = track.NewBuffer()
	chconf := channel.Config{
		BaseDelay:  config.BaseDelay,
		MaxDelay:   config.MaxDelay,
		MaxRetries: config.MaxRetries,
	}
	dial := config.Dial
	if dial == nil {
		dial = channel.DialWebsocket
	}
	c.live = channel.NewWithDial("live", config.LiveURL, chconf, dial)
	c.logch = channel.NewWithDial("log", config.LogURL, chconf, dial)
	c.cmd = channel.NewWithDial("command", config.CommandURL, chconf, dial)
	c.answer = channel.NewWithDial("answer", config.AnswerURL, chconf, dial)
	c.corr = request.New(c.cmd, c.answer.Messages())
	return c
}

func (c *Client) Buffer() *track.Buffer {
	return c.buffer
}

func (c *Client) Requests() *request.Correlator {
	return c.corr
}

// Channel returns the named channel connection (live, log, command,
// answer) so callers can observe its state, notably the terminal
// disconnected state after retry exhaustion.
func (c *Client) Channel(name string) *channel.Channel {
	switch name {
	case "live":
		return c.live
	case "log":
		return c.logch
	case "command":
		return c.cmd
	case "answer":
		return c.answer
	default:
		return nil
	}
}

// Run opens all channels and starts feeding the buffer from the live
// stream and the log output from the log stream.
func (c *Client) Run() {
	c.liveSub = c.live.Messages().Subscribe(64)
	c.logSub = c.logch.Messages().Subscribe(64)
	go c.consumeLive()
	go c.consumeLog()
	c.live.Open()
	c.logch.Open()
	c.cmd.Open()
	c.answer.Open()
}

func (c *Client) consumeLive() {
	for raw := range c.liveSub.C() {
		var p wire.Point
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed live point")
			continue
		}
		if err := c.validate.Struct(&p); err != nil {
			c.logger.Warn().Err(err).Msg("dropping out-of-range live point")
			continue
		}
		c.buffer.AppendLive(p)
	}
}

func (c *Client) consumeLog() {
	for raw := range c.logSub.C() {
		var m wire.LogMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed log frame")
			continue
		}
		if err := c.validate.Struct(&m); err != nil {
			c.logger.Warn().Err(err).Msg("dropping unschematic log frame")
			continue
		}
		if m.MsgType == wire.MsgError {
			c.logger.Error().Str("origin", "server").Msg(m.Message)
		} else {
			c.logger.Info().Str("origin", "server").Msg(m.Message)
		}
	}
}

// WaitReady blocks until the command and answer channels are connected,
// so a request issued right after Run does not race the asynchronous
// dial and fail with a spurious not-connected error.
func (c *Client) WaitReady(ctx context.Context) error {
	for _, ch := range []*channel.Channel{c.cmd, c.answer} {
		if err := waitConnected(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

func waitConnected(ctx context.Context, ch *channel.Channel) error {
	sub := ch.StateChanges().SubscribeReplay(4)
	defer ch.StateChanges().Unsubscribe(sub)
	if ch.State() == channel.Connected {
		return nil
	}
	for {
		select {
		case s, ok := <-sub.C():
			if !ok {
				return errors.New("state topic closed")
			}
			if s == channel.Connected {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SyncHistory fetches the historical batch for the range and replaces the
// buffer's historical side with it.
func (c *Client) SyncHistory(ctx context.Context, deviceID, start, end string) (int, error) {
	pts, err := c.corr.History(ctx, deviceID, start, end)
	if err != nil {
		return 0, err
	}
	c.buffer.ReplaceHistorical(pts)
	return len(pts), nil
}

// Close closes all channels intentionally and stops the consume loops.
func (c *Client) Close() {
	c.corr.Close()
	c.live.Close()
	c.logch.Close()
	c.cmd.Close()
	c.answer.Close()
	if c.liveSub != nil {
		c.live.Messages().Unsubscribe(c.liveSub)
	}
	if c.logSub != nil {
		c.logch.Messages().Unsubscribe(c.logSub)
	}
}
