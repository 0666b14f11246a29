package tasks

import (
	"encoding/json"
	"time"
)

const TypeSweep = "sweep"

// Payload is the body of one stream entry. Redis hands values back as
// strings, so every field is a string on the wire.
type Payload struct {
	Type        string `json:"type"`
	RequestedAt string `json:"requestedAt,omitempty"`
}

func NewSweep(at time.Time) Payload {
	return Payload{Type: TypeSweep, RequestedAt: at.UTC().Format(time.RFC3339)}
}

// Values flattens p into stream entry fields.
func (p Payload) Values() map[string]any {
	values := map[string]any{"type": p.Type}
	if p.RequestedAt != "" {
		values["requestedAt"] = p.RequestedAt
	}
	return values
}

func decodePayload(values map[string]interface{}, out *Payload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}
