package events

import (
	"encoding/json"
)

// EventData is the interface that all event payload types implement.
// It ties a payload to its event type so publishers cannot mismatch them.
type EventData interface {
	EventType() EventType
}

// GraphBuildStartedData contains data for GraphBuildStarted events
type GraphBuildStartedData struct {
	Mode string `json:"mode"` // "full" or "light"
}

// EventType returns the event type for GraphBuildStartedData
func (d *GraphBuildStartedData) EventType() EventType {
	return GraphBuildStarted
}

// GraphBuildCompletedData contains data for GraphBuildCompleted events
type GraphBuildCompletedData struct {
	Version    int64   `json:"version"`
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
	DurationMS float64 `json:"duration_ms"`
}

// EventType returns the event type for GraphBuildCompletedData
func (d *GraphBuildCompletedData) EventType() EventType {
	return GraphBuildCompleted
}

// GraphBuildFailedData contains data for GraphBuildFailed events
type GraphBuildFailedData struct {
	Error string `json:"error"`
}

// EventType returns the event type for GraphBuildFailedData
func (d *GraphBuildFailedData) EventType() EventType {
	return GraphBuildFailed
}

// GraphRefreshedData contains data for GraphRefreshed events.
// A refresh re-prices market edges in place without a version bump.
type GraphRefreshedData struct {
	Version      int64   `json:"version"`
	EdgesUpdated int     `json:"edges_updated"`
	DurationMS   float64 `json:"duration_ms"`
}

// EventType returns the event type for GraphRefreshedData
func (d *GraphRefreshedData) EventType() EventType {
	return GraphRefreshed
}

// AssetAddedData contains data for AssetAdded events
type AssetAddedData struct {
	Key    string `json:"key"`
	Code   string `json:"code"`
	Issuer string `json:"issuer,omitempty"`
}

// EventType returns the event type for AssetAddedData
func (d *AssetAddedData) EventType() EventType {
	return AssetAdded
}

// AnchorAddedData contains data for AnchorAdded events
type AnchorAddedData struct {
	Name       string `json:"name"`
	HomeDomain string `json:"home_domain"`
}

// EventType returns the event type for AnchorAddedData
func (d *AnchorAddedData) EventType() EventType {
	return AnchorAdded
}

// AnchorHealthChangedData contains data for AnchorHealthChanged events
type AnchorHealthChangedData struct {
	Name      string  `json:"name"`
	OldHealth float64 `json:"old_health"`
	NewHealth float64 `json:"new_health"`
}

// EventType returns the event type for AnchorHealthChangedData
func (d *AnchorHealthChangedData) EventType() EventType {
	return AnchorHealthChanged
}

// QuoteLifecycleData contains data for quote lifecycle events.
// The event type is determined by the Status field.
type QuoteLifecycleData struct {
	QuoteID string `json:"quote_id"`
	Status  string `json:"status"` // "created", "consumed", "expired"
	Source  string `json:"source,omitempty"`
	Dest    string `json:"dest,omitempty"`
}

// EventType returns the event type for QuoteLifecycleData
func (d *QuoteLifecycleData) EventType() EventType {
	switch d.Status {
	case "consumed":
		return QuoteConsumed
	case "expired":
		return QuoteExpired
	default:
		return QuoteCreated
	}
}

// RouteCacheClearedData contains data for RouteCacheCleared events
type RouteCacheClearedData struct {
	Reason  string `json:"reason"` // "rebuild", "manual"
	Version int64  `json:"version"`
}

// EventType returns the event type for RouteCacheClearedData
func (d *RouteCacheClearedData) EventType() EventType {
	return RouteCacheCleared
}

// JobStatusData contains data for scheduled job lifecycle events.
// The event type is determined by the Status field.
type JobStatusData struct {
	JobName  string  `json:"job_name"`
	Status   string  `json:"status"` // "started", "completed", "failed"
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// EventType returns the event type for JobStatusData
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// GenericEventData is a fallback for events without a dedicated payload type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}

// UnmarshalEvent decodes a serialized event, recovering the typed payload
// for known event types. Unknown types fall back to GenericEventData.
func UnmarshalEvent(raw []byte) (*Event, error) {
	aux := struct {
		Type      EventType       `json:"type"`
		Timestamp string          `json:"timestamp"`
		Module    string          `json:"module"`
		Data      json.RawMessage `json:"data"`
	}{}

	if err := json.Unmarshal(raw, &aux); err != nil {
		return nil, err
	}

	evt := &Event{Type: aux.Type, Module: aux.Module}
	if aux.Timestamp != "" {
		if err := evt.Timestamp.UnmarshalText([]byte(aux.Timestamp)); err != nil {
			return nil, err
		}
	}

	if len(aux.Data) == 0 {
		return evt, nil
	}

	var payload EventData
	switch aux.Type {
	case GraphBuildStarted:
		payload = &GraphBuildStartedData{}
	case GraphBuildCompleted:
		payload = &GraphBuildCompletedData{}
	case GraphBuildFailed:
		payload = &GraphBuildFailedData{}
	case GraphRefreshed:
		payload = &GraphRefreshedData{}
	case AssetAdded:
		payload = &AssetAddedData{}
	case AnchorAdded:
		payload = &AnchorAddedData{}
	case AnchorHealthChanged:
		payload = &AnchorHealthChangedData{}
	case QuoteCreated, QuoteConsumed, QuoteExpired:
		payload = &QuoteLifecycleData{}
	case RouteCacheCleared:
		payload = &RouteCacheClearedData{}
	case JobStarted, JobCompleted, JobFailed:
		payload = &JobStatusData{}
	case ErrorOccurred:
		payload = &ErrorEventData{}
	default:
		payload = &GenericEventData{Type: aux.Type}
	}

	if err := json.Unmarshal(aux.Data, payload); err != nil {
		return nil, err
	}
	evt.Data = payload

	return evt, nil
}
