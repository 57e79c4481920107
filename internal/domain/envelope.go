package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// MessageType is the envelope discriminator. Consumers map it to a handler
// by replacing the dot with an underscore (printer.message -> printer_message).
type MessageType string

const (
	TypePrinterMessage MessageType = "printer.message"
	TypeWebMessage     MessageType = "web.message"
	TypePrinterStatus  MessageType = "printer.status"
	TypeJanusMessage   MessageType = "janus.message"
	TypeTunnelMessage  MessageType = "octoprinttunnel.message"
)

const typeField = "type"

var ErrMissingType = errors.New("envelope has no type")

// Envelope is an immutable typed message. Fields are deep-copied on the way
// in and on the way out: nested maps and slices are cloned, other reference
// values are shared.
type Envelope struct {
	typ    MessageType
	fields map[string]any
}

func NewEnvelope(t MessageType, fields map[string]any) Envelope {
	cp := cloneFields(fields)
	delete(cp, typeField)
	return Envelope{typ: t, fields: cp}
}

func (e Envelope) Type() MessageType { return e.typ }

func (e Envelope) Field(name string) (any, bool) {
	v, ok := e.fields[name]
	return cloneValue(v), ok
}

// Fields returns a copy of the type-specific fields.
func (e Envelope) Fields() map[string]any {
	return cloneFields(e.fields)
}

func cloneFields(fields map[string]any) map[string]any {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.typ == "" {
		return nil, ErrMissingType
	}
	flat := make(map[string]any, len(e.fields)+1)
	maps.Copy(flat, e.fields)
	flat[typeField] = e.typ
	return json.Marshal(flat)
}

// UnmarshalJSON keeps numbers as json.Number so large integers survive a
// round trip through a store.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&flat); err != nil {
		return err
	}
	t, _ := flat[typeField].(string)
	if t == "" {
		return ErrMissingType
	}
	delete(flat, typeField)
	e.typ = MessageType(t)
	e.fields = flat
	return nil
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s%v", e.typ, e.fields)
}

// RemoteStatus is the status block pushed to printer agents.
type RemoteStatus struct {
	Viewing     *bool `json:"viewing,omitempty"`
	ShouldWatch *bool `json:"should_watch,omitempty"`
}

func PrinterMessage(payload map[string]any) Envelope {
	return NewEnvelope(TypePrinterMessage, payload)
}

func WebMessage(payload map[string]any) Envelope {
	return NewEnvelope(TypeWebMessage, payload)
}

// PrinterStatus carries no payload; viewers re-fetch status themselves.
func PrinterStatus() Envelope {
	return NewEnvelope(TypePrinterStatus, nil)
}

func JanusMessage(msg any) Envelope {
	return NewEnvelope(TypeJanusMessage, map[string]any{"msg": msg})
}

func TunnelMessage(data any) Envelope {
	return NewEnvelope(TypeTunnelMessage, map[string]any{"data": data})
}

func ViewingPayload(viewing bool) map[string]any {
	return map[string]any{"remote_status": RemoteStatus{Viewing: &viewing}}
}

func ShouldWatchPayload(shouldWatch bool) map[string]any {
	return map[string]any{"remote_status": RemoteStatus{ShouldWatch: &shouldWatch}}
}
