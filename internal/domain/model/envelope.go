package model

import (
	"encoding/json"
	"errors"
)

// Envelope is the normalized backend response, whichever tier produced it.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Status  int             `json:"-"`
	Tier    string          `json:"-"`
}

// Decode unmarshals Data into v.
func (e *Envelope) Decode(v any) error {
	if e == nil || len(e.Data) == 0 {
		return errors.New("envelope has no data")
	}
	return json.Unmarshal(e.Data, v)
}
