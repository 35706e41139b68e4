// Package wire defines the message schemas carried over the four logical
// channels: live points, server logs, client commands and server answers.
package wire

import (
	"encoding/json"
	"time"
)

const (
	ActionGetHistory       string = "get_history"
	ActionGetHistoryBounds string = "get_history_bounds"
	ActionGetDevices       string = "get_devices"
	ActionGetDeviceStatus  string = "get_device_status"
	ActionPing             string = "ping"
)

const (
	StatusSuccess string = "success"
	StatusError   string = "error"
)

const (
	MsgLog   string = "log"
	MsgError string = "error"
)

// Point is one timestamped coordinate reading. Timestamp is the raw
// ISO-8601 string as received; an empty string means the reading carried
// no timestamp.
type Point struct {
	Latitude  float64  `json:"latitude" validate:"latitude"`
	Longitude float64  `json:"longitude" validate:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

type LogMessage struct {
	MsgType string `json:"msg_type" validate:"required,oneof=log error"`
	Message string `json:"message"`
}

type Request struct {
	Action    string            `json:"action" validate:"required"`
	Params    map[string]string `json:"params,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type Answer struct {
	Action    string          `json:"action" validate:"required"`
	RequestID string          `json:"request_id,omitempty"`
	Status    string          `json:"status" validate:"required,oneof=success error"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// HistoryPoint is one polyline entry inside a get_history answer. The
// backend abbreviates the coordinate field names in this payload only.
type HistoryPoint struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp string  `json:"timestamp"`
}

type HistoryData struct {
	DeviceID string         `json:"device_id"`
	Start    string         `json:"start"`
	End      string         `json:"end"`
	Count    int            `json:"count"`
	Polyline []HistoryPoint `json:"polyline"`
}

// Points converts the polyline to the common Point shape.
func (h *HistoryData) Points() []Point {
	pts := make([]Point, 0, len(h.Polyline))
	for _, hp := range h.Polyline {
		pts = append(pts, Point{Latitude: hp.Lat, Longitude: hp.Lon, Timestamp: hp.Timestamp})
	}
	return pts
}

type BoundsData struct {
	OldestTimestamp string `json:"oldest_timestamp"`
	NewestTimestamp string `json:"newest_timestamp"`
	DeviceID        string `json:"device_id,omitempty"`
	SpanSeconds     int64  `json:"span_seconds"`
}

type ErrorData struct {
	Error string `json:"error"`
}

// ParseTimestamp parses an ISO-8601 timestamp, tolerating the Z suffix,
// fractional seconds and zone-less strings. Empty or unparseable input
// returns the zero time and false, which sorts before every real reading.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", s)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t.UTC(), true
}
