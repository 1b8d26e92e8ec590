package session

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/webterm/internal/pty"
)

// ControlResize is the only control message type.
const ControlResize = "resize"

// Control is an out-of-band instruction carried in a text frame.
type Control struct {
	Type string `json:"type"`
	Cols *int   `json:"cols,omitempty"`
	Rows *int   `json:"rows,omitempty"`
}

// Size returns the requested size. Absent dimensions are zero, which
// pty.Size.Merge replaces with the previous value.
func (c Control) Size() pty.Size {
	var size pty.Size
	if c.Cols != nil {
		size.Cols = *c.Cols
	}
	if c.Rows != nil {
		size.Rows = *c.Rows
	}
	return size
}

// ParseControl decodes a resize control message. Keys match exactly, so
// {"TYPE":"resize"} is input, not a resize. Every other payload, including
// valid JSON of another shape, yields an error wrapping ErrControlParse.
func ParseControl(data []byte) (Control, error) {
	if !looksLikeObject(data) {
		return Control{}, ErrControlParse
	}

	var fields map[string]sonic.NoCopyRawMessage
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return Control{}, fmt.Errorf("%w: %v", ErrControlParse, err)
	}

	var ctl Control
	if raw, ok := fields["type"]; ok {
		if err := sonic.Unmarshal(raw, &ctl.Type); err != nil {
			return Control{}, fmt.Errorf("%w: type: %v", ErrControlParse, err)
		}
	}
	if ctl.Type != ControlResize {
		return Control{}, fmt.Errorf("%w: type %q", ErrControlParse, ctl.Type)
	}

	var err error
	if ctl.Cols, err = dimension(fields, "cols"); err != nil {
		return Control{}, err
	}
	if ctl.Rows, err = dimension(fields, "rows"); err != nil {
		return Control{}, err
	}
	return ctl, nil
}

// dimension decodes an optional integer field. Absent and null are nil.
func dimension(fields map[string]sonic.NoCopyRawMessage, key string) (*int, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	var v *int
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrControlParse, key, err)
	}
	return v, nil
}

// EncodeResize builds the resize message a client sends.
func EncodeResize(size pty.Size) ([]byte, error) {
	cols, rows := size.Cols, size.Rows
	return sonic.Marshal(Control{Type: ControlResize, Cols: &cols, Rows: &rows})
}

// looksLikeObject skips JSON decoding for ordinary keystrokes.
func looksLikeObject(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
