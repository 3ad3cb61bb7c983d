package events

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var eventJSON = []byte(`{"type":"event"}`)

// MarshalJSON implements custom JSON marshaling for Event.
func (e Event) MarshalJSON() ([]byte, error) {
	result := eventJSON

	var err error
	result, err = sjson.SetBytes(result, "id", e.ID)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "name", e.Name)
	if err != nil {
		return nil, err
	}

	payload := e.Payload
	if payload == nil {
		payload = Payload{}
	}
	payloadBytes, err := json.Marshal(map[string]any(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "payload", payloadBytes)
	if err != nil {
		return nil, err
	}

	if !e.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", e.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}

	if e.Source != "" {
		result, err = sjson.SetBytes(result, "source", e.Source)
		if err != nil {
			return nil, err
		}
	}

	if e.CausedBy != "" {
		result, err = sjson.SetBytes(result, "caused_by", e.CausedBy)
		if err != nil {
			return nil, err
		}
	}

	if e.Depth > 0 {
		result, err = sjson.SetBytes(result, "depth", e.Depth)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "event" {
		return fmt.Errorf("missing or invalid type, expected 'event'")
	}

	name := gjson.GetBytes(data, "name")
	if !name.Exists() || name.String() == "" {
		return fmt.Errorf("missing required field 'name'")
	}
	e.Name = name.String()
	e.ID = gjson.GetBytes(data, "id").String()

	e.Payload = Payload{}
	if payload := gjson.GetBytes(data, "payload"); payload.Exists() {
		if !payload.IsObject() {
			return fmt.Errorf("invalid payload: expected an object")
		}
		if err := json.Unmarshal([]byte(payload.Raw), &e.Payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	if timestamp := gjson.GetBytes(data, "timestamp"); timestamp.Exists() {
		if err := e.Timestamp.UnmarshalText([]byte(timestamp.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	e.Source = gjson.GetBytes(data, "source").String()
	e.CausedBy = gjson.GetBytes(data, "caused_by").String()
	e.Depth = int(gjson.GetBytes(data, "depth").Int())

	return nil
}

// Decode parses a JSON encoded event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := ev.UnmarshalJSON(data); err != nil {
		return Event{}, err
	}
	return ev, nil
}
