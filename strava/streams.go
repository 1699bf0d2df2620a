package strava

import (
	"context"
	"fmt"
)

// StreamKeys are the per-sample series requested for each activity.
const StreamKeys = "time,distance,altitude,heartrate"

// Stream is one per-sample series. Values are in the provider's units:
// seconds, meters and beats per minute.
type Stream struct {
	Data         []float64 `json:"data"`
	SeriesType   string    `json:"series_type"`
	OriginalSize int       `json:"original_size"`
	Resolution   string    `json:"resolution"`
}

// Streams is keyed by stream type ("time", "distance", ...).
type Streams map[string]Stream

// Series returns the data for key, or nil when the activity has no such
// stream.
func (s Streams) Series(key string) []float64 {
	if st, ok := s[key]; ok {
		return st.Data
	}
	return nil
}

// GetActivityStreams fetches the time, distance, altitude and heart-rate
// series of one activity.
func (c *Client) GetActivityStreams(ctx context.Context, token, activityID string) (Streams, error) {
	out := Streams{}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParam("id", activityID).
		SetQueryParams(map[string]string{
			"keys":        StreamKeys,
			"key_by_type": "true",
		}).
		SetResult(&out).
		Get("/activities/{id}/streams")
	if err != nil {
		return nil, fmt.Errorf("get streams for activity %s: %w", activityID, err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	return out, nil
}
