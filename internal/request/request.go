// Package request correlates commands sent to the server with the
// answers it returns asynchronously on the paired answer channel.
package request

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"nuha.dev/gpsview/internal/pubsub"
	"nuha.dev/gpsview/internal/wire"
)

var ErrNotConnected = errors.New("command channel not connected")

// ServerError is an answer with status "error".
type ServerError struct {
	Action  string
	Message string
}

func (e *ServerError) Error() string {
	return "server error on " + e.Action + ": " + e.Message
}

// Sender is the outbound side of the command channel.
type Sender interface {
	Send(v interface{}) bool
}

type Correlator struct {
	logger    zerolog.Logger
	cmd       Sender
	validate  *validator.Validate
	answers   *pubsub.Topic[json.RawMessage]
	sub       *pubsub.Sub[json.RawMessage]
	unmatched *pubsub.Topic[wire.Answer]

	mu      sync.Mutex
	pending map[string]chan wire.Answer
}

// New subscribes to the answer topic and starts routing answers to
// pending calls by request_id.
func New(cmd Sender, answers *pubsub.Topic[json.RawMessage]) *Correlator {
	c := &Correlator{cmd: cmd, answers: answers}
	c.logger = log.With().Str("module", "request").Logger()
	c.validate = validator.New()
	c.pending = make(map[string]chan wire.Answer)
	c.unmatched = pubsub.NewTopic[wire.Answer]()
	c.sub = answers.Subscribe(32)
	go c.dispatch()
	return c
}

// Close stops answer routing. Pending calls are left to their contexts.
func (c *Correlator) Close() {
	c.answers.Unsubscribe(c.sub)
}

// Unmatched broadcasts answers that correspond to no pending call, such
// as unsolicited pushes or answers to calls that were already abandoned.
func (c *Correlator) Unmatched() *pubsub.Topic[wire.Answer] {
	return c.unmatched
}

func (c *Correlator) dispatch() {
	for raw := range c.sub.C() {
		var ans wire.Answer
		if err := json.Unmarshal(raw, &ans); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed answer")
			continue
		}
		if err := c.validate.Struct(&ans); err != nil {
			c.logger.Warn().Err(err).Msg("dropping unschematic answer")
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[ans.RequestID]
		if ok {
			delete(c.pending, ans.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ch <- ans
		} else {
			c.unmatched.Publish(ans)
		}
	}
}

// Do sends one command and blocks until the matching answer arrives or
// ctx is done. A caller-supplied request id is echoed back unchanged by
// the server; when empty a fresh one is generated.
func (c *Correlator) Do(ctx context.Context, action string, params map[string]string, requestID string) (wire.Answer, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ch := make(chan wire.Answer, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()
	req := wire.Request{Action: action, Params: params, RequestID: requestID}
	if !c.cmd.Send(req) {
		return wire.Answer{}, ErrNotConnected
	}
	select {
	case ans := <-ch:
		if ans.Status == wire.StatusError {
			return ans, &ServerError{Action: ans.Action, Message: errMessage(ans.Data)}
		}
		return ans, nil
	case <-ctx.Done():
		return wire.Answer{}, ctx.Err()
	}
}

// History fetches the historical batch for a closed time range and
// decodes the polyline into the common point shape.
func (c *Correlator) History(ctx context.Context, deviceID, start, end string) ([]wire.Point, error) {
	params := map[string]string{"start": start, "end": end, "format": "polyline"}
	if deviceID != "" {
		params["device_id"] = deviceID
	}
	ans, err := c.Do(ctx, wire.ActionGetHistory, params, "")
	if err != nil {
		return nil, err
	}
	var data wire.HistoryData
	if err := json.Unmarshal(ans.Data, &data); err != nil {
		return nil, err
	}
	return data.Points(), nil
}

// HistoryBounds fetches the available timestamp range, globally or for
// one device.
func (c *Correlator) HistoryBounds(ctx context.Context, deviceID string) (wire.BoundsData, error) {
	params := map[string]string{}
	if deviceID != "" {
		params["device_id"] = deviceID
	}
	ans, err := c.Do(ctx, wire.ActionGetHistoryBounds, params, "")
	if err != nil {
		return wire.BoundsData{}, err
	}
	var data wire.BoundsData
	if err := json.Unmarshal(ans.Data, &data); err != nil {
		return wire.BoundsData{}, err
	}
	return data, nil
}

func (c *Correlator) Devices(ctx context.Context) (json.RawMessage, error) {
	ans, err := c.Do(ctx, wire.ActionGetDevices, nil, "")
	if err != nil {
		return nil, err
	}
	return ans.Data, nil
}

func (c *Correlator) DeviceStatus(ctx context.Context, deviceID string) (json.RawMessage, error) {
	ans, err := c.Do(ctx, wire.ActionGetDeviceStatus, map[string]string{"device_id": deviceID}, "")
	if err != nil {
		return nil, err
	}
	return ans.Data, nil
}

func (c *Correlator) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, wire.ActionPing, nil, "")
	return err
}

func errMessage(data json.RawMessage) string {
	var ed wire.ErrorData
	if err := json.Unmarshal(data, &ed); err == nil && ed.Error != "" {
		return ed.Error
	}
	return string(data)
}
