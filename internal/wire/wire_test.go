package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	got, ok := ParseTimestamp("2025-01-27T06:04:54Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 27, 6, 4, 54, 0, time.UTC), got)

	got, ok = ParseTimestamp("2025-01-27T06:04:54.123Z")
	require.True(t, ok)
	assert.Equal(t, 123000000, got.Nanosecond())

	// offsets are normalized to UTC: 06:04+07:00 is 23:04 the day before
	got, ok = ParseTimestamp("2025-01-27T06:04:54+07:00")
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 23, got.Hour())
	assert.Equal(t, 26, got.Day())

	// zone-less timestamps are taken as UTC
	_, ok = ParseTimestamp("2025-01-27T06:04:54")
	assert.True(t, ok)

	_, ok = ParseTimestamp("")
	assert.False(t, ok)
	_, ok = ParseTimestamp("yesterday")
	assert.False(t, ok)
}

func TestPointDecode(t *testing.T) {
	raw := `{"latitude":10.9878,"longitude":-74.7889,"altitude":120.5,"accuracy":3.2,"timestamp":"2025-01-27T06:04:54Z"}`
	var p Point
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, 10.9878, p.Latitude)
	assert.Equal(t, -74.7889, p.Longitude)
	require.NotNil(t, p.Altitude)
	assert.Equal(t, 120.5, *p.Altitude)

	// timestamp-or-null: null decodes to the empty string
	raw = `{"latitude":1,"longitude":2,"timestamp":null}`
	p = Point{}
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Empty(t, p.Timestamp)
	assert.Nil(t, p.Altitude)
}

func TestHistoryAnswerDecode(t *testing.T) {
	// payload shape as produced by the backend's get_history handler
	raw := `{
		"action":"get_history","request_id":"r-1","status":"success",
		"data":{"device_id":"TRUCK-001","start":"2025-01-01T00:00:00Z","end":"2025-01-02T00:00:00Z",
			"count":2,
			"polyline":[
				{"lat":10.9878,"lon":-74.7889,"timestamp":"2025-01-01T06:00:00Z"},
				{"lat":10.9880,"lon":-74.7891,"timestamp":"2025-01-01T07:00:00Z"}
			]}}`
	var ans Answer
	require.NoError(t, json.Unmarshal([]byte(raw), &ans))
	assert.Equal(t, ActionGetHistory, ans.Action)
	assert.Equal(t, "r-1", ans.RequestID)
	assert.Equal(t, StatusSuccess, ans.Status)

	var data HistoryData
	require.NoError(t, json.Unmarshal(ans.Data, &data))
	require.Len(t, data.Polyline, 2)

	pts := data.Points()
	require.Len(t, pts, 2)
	assert.Equal(t, 10.9878, pts[0].Latitude)
	assert.Equal(t, -74.7889, pts[0].Longitude)
	assert.Equal(t, "2025-01-01T06:00:00Z", pts[0].Timestamp)
}

func TestBoundsAnswerDecode(t *testing.T) {
	raw := `{"oldest_timestamp":"2025-01-01T00:00:00Z","newest_timestamp":"2025-10-21T15:30:00Z","device_id":"TRUCK-001","span_seconds":25920000}`
	var data BoundsData
	require.NoError(t, json.Unmarshal([]byte(raw), &data))
	assert.Equal(t, "TRUCK-001", data.DeviceID)
	assert.Equal(t, int64(25920000), data.SpanSeconds)
}

func TestRequestEncode(t *testing.T) {
	req := Request{
		Action:    ActionGetHistory,
		Params:    map[string]string{"start": "a", "end": "b"},
		RequestID: "r-9",
	}
	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"get_history","params":{"start":"a","end":"b"},"request_id":"r-9"}`, string(b))

	// optional fields stay off the wire when unset
	b, err = json.Marshal(Request{Action: ActionPing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"ping"}`, string(b))
}
