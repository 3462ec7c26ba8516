package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionRef is a typed reference to a concept action.
// Format: "Concept.action".
type ActionRef string

// NewActionRef joins a concept and action name.
func NewActionRef(concept, action string) ActionRef {
	return ActionRef(concept + "." + action)
}

// ParseActionRef splits "Concept.action" into its parts.
// Both parts must be non-empty and the action may not contain a dot.
func ParseActionRef(s string) (concept, action string, err error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return "", "", fmt.Errorf("invalid action reference %q: want Concept.action", s)
	}
	concept, action = s[:idx], s[idx+1:]
	if strings.Contains(concept, ".") {
		return "", "", fmt.Errorf("invalid action reference %q: concept name contains '.'", s)
	}
	return concept, action, nil
}

// Concept returns the concept part of the reference.
func (r ActionRef) Concept() string {
	c, _, _ := ParseActionRef(string(r))
	return c
}

// Action returns the action part of the reference.
func (r ActionRef) Action() string {
	_, a, _ := ParseActionRef(string(r))
	return a
}

// Path returns the gateway path form "Concept/action".
func (r ActionRef) Path() string {
	c, a, err := ParseActionRef(string(r))
	if err != nil {
		return string(r)
	}
	return c + "/" + a
}

// Invocation is a single request to run an action.
type Invocation struct {
	ID        string    `json:"id"`
	FlowToken string    `json:"flow_token"`
	ActionURI ActionRef `json:"action_uri"`
	Args      IRObject  `json:"args"`
	Seq       int64     `json:"seq"`
}

// Outcome is the definitive answer to a dispatched invocation.
// Success carries Data; failure carries Error.
type Outcome struct {
	Success bool
	Data    IRObject
	Error   string
}

// Succeeded builds a success outcome. A nil result becomes an empty object.
func Succeeded(data IRObject) Outcome {
	if data == nil {
		data = IRObject{}
	}
	return Outcome{Success: true, Data: data}
}

// Failed builds a failure outcome.
func Failed(msg string) Outcome {
	return Outcome{Success: false, Error: msg}
}

// MarshalJSON writes the wire envelope: {"success":true,"data":...} or
// {"success":false,"error":"..."}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Success {
		data := o.Data
		if data == nil {
			data = IRObject{}
		}
		return json.Marshal(struct {
			Success bool     `json:"success"`
			Data    IRObject `json:"data"`
		}{true, data})
	}
	return json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{false, o.Error})
}

// UnmarshalJSON reads the wire envelope.
func (o *Outcome) UnmarshalJSON(b []byte) error {
	var raw struct {
		Success bool     `json:"success"`
		Data    IRObject `json:"data"`
		Error   string   `json:"error"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*o = Outcome{Success: raw.Success, Data: raw.Data, Error: raw.Error}
	return nil
}
