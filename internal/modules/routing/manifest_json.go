package routing

import (
	"encoding/json"

	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// UnmarshalJSON restores a leg's typed detail block. Cached responses and
// frozen quotes round-trip manifests through JSON, so the tagged union
// has to survive decoding.
func (l *Leg) UnmarshalJSON(data []byte) error {
	var aux struct {
		From    string          `json:"from"`
		To      string          `json:"to"`
		Type    string          `json:"type"`
		Weight  float64         `json:"weight"`
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	l.From = aux.From
	l.To = aux.To
	l.Type = aux.Type
	l.Weight = aux.Weight
	l.Details = nil

	if len(aux.Details) == 0 || string(aux.Details) == "null" {
		return nil
	}

	switch aux.Type {
	case string(graph.EdgeDEX):
		var d DEXLegDetails
		if err := json.Unmarshal(aux.Details, &d); err != nil {
			return err
		}
		l.Details = d
	case string(graph.EdgeAnchorBridge):
		var d BridgeLegDetails
		if err := json.Unmarshal(aux.Details, &d); err != nil {
			return err
		}
		l.Details = d
	case string(graph.EdgeXLMHub):
		var d HubLegDetails
		if err := json.Unmarshal(aux.Details, &d); err != nil {
			return err
		}
		l.Details = d
	case LegHorizonPath:
		var d HorizonLegDetails
		if err := json.Unmarshal(aux.Details, &d); err != nil {
			return err
		}
		l.Details = d
	}

	return nil
}
