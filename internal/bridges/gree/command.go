package gree

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Swing mode names.
const (
	SwingOff        = "off"
	SwingVertical   = "vertical"
	SwingHorizontal = "horizontal"
	SwingBoth       = "both"
)

// Command field names accepted from the sink.
const (
	FieldPower       = "power"
	FieldMode        = "mode"
	FieldTemperature = "temperature"
	FieldFanMode     = "fan_mode"
	FieldSwingMode   = "swing_mode"
)

// Command is a partial climate update. Nil fields are left untouched on the
// device.
type Command struct {
	Power       *bool
	Mode        *string
	Temperature *int
	FanMode     *string
	SwingMode   *string
}

// Empty reports whether no field is set.
func (c Command) Empty() bool {
	return c.Power == nil && c.Mode == nil && c.Temperature == nil &&
		c.FanMode == nil && c.SwingMode == nil
}

// ParseCommand builds a Command from loosely typed fields as they arrive
// from a JSON payload. Mode, fan and swing names are matched without regard
// to case. Values that cannot be read for their field are dropped; unknown
// keys are ignored.
func ParseCommand(fields map[string]any) Command {
	var cmd Command

	if v, ok := fields[FieldPower]; ok {
		if on, ok := parsePower(v); ok {
			cmd.Power = &on
		}
	}
	if v, ok := fields[FieldMode].(string); ok {
		m := normalizeName(v)
		cmd.Mode = &m
	}
	if v, ok := fields[FieldTemperature]; ok {
		if t, ok := parseInt(v); ok {
			cmd.Temperature = &t
		}
	}
	if v, ok := fields[FieldFanMode].(string); ok {
		f := normalizeName(v)
		cmd.FanMode = &f
	}
	if v, ok := fields[FieldSwingMode]; ok {
		s, _ := v.(string)
		s = normalizeName(s)
		cmd.SwingMode = &s
	}
	return cmd
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func parsePower(v any) (bool, bool) {
	switch p := v.(type) {
	case bool:
		return p, true
	case string:
		switch strings.ToUpper(p) {
		case "ON":
			return true, true
		case "OFF":
			return false, true
		}
	}
	return false, false
}

func parseInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil {
			return int(f), true
		}
	case string:
		n = strings.TrimSpace(n)
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int(f), true
		}
	}
	return 0, false
}

// Instruction is the opcode/value list sent in a cmd pack. Opt and P are
// aligned by index.
type Instruction struct {
	Opt []string `json:"opt"`
	P   []int    `json:"p"`
	T   string   `json:"t"`
}

func (in *Instruction) add(opcode string, value int) {
	in.Opt = append(in.Opt, opcode)
	in.P = append(in.P, value)
}

// Len returns the number of opcodes.
func (in Instruction) Len() int { return len(in.Opt) }

// Value returns the value for opcode and whether it is present.
func (in Instruction) Value(opcode string) (int, bool) {
	for i, op := range in.Opt {
		if op == opcode && i < len(in.P) {
			return in.P[i], true
		}
	}
	return 0, false
}

// Translate maps a Command to device opcodes. Only fields that are set
// produce opcodes. Unknown mode and fan names are dropped. A swing value
// that is set but not recognised turns both axes off.
func Translate(cmd Command) Instruction {
	in := Instruction{T: TagCmd, Opt: []string{}, P: []int{}}

	if cmd.Power != nil {
		in.add(OpPower, boolInt(*cmd.Power))
	}
	if cmd.Mode != nil {
		if m, ok := ParseMode(*cmd.Mode); ok {
			in.add(OpMode, int(m))
		}
	}
	if cmd.Temperature != nil {
		in.add(OpSetTemp, *cmd.Temperature)
	}
	if cmd.FanMode != nil {
		if f, ok := ParseFanSpeed(*cmd.FanMode); ok {
			in.add(OpFanSpeed, int(f))
		}
	}
	if cmd.SwingMode != nil {
		vertical, horizontal := swingAxes(*cmd.SwingMode)
		in.add(OpSwingUpDown, boolInt(vertical))
		in.add(OpSwingLfRig, boolInt(horizontal))
	}
	return in
}

func swingAxes(mode string) (vertical, horizontal bool) {
	switch mode {
	case SwingVertical:
		return true, false
	case SwingHorizontal:
		return false, true
	case SwingBoth:
		return true, true
	default:
		return false, false
	}
}

// CommandFromInstruction maps opcodes back to a Command. Opcodes outside the
// command vocabulary are ignored; a lone swing axis is read with the other
// axis off.
func CommandFromInstruction(in Instruction) (Command, error) {
	if len(in.Opt) != len(in.P) {
		return Command{}, fmt.Errorf("%w: %d opcodes, %d values", ErrUnexpectedResponse, len(in.Opt), len(in.P))
	}

	var (
		cmd                  Command
		vertical, horizontal bool
		swingSeen            bool
	)
	for i, op := range in.Opt {
		v := in.P[i]
		switch op {
		case OpPower:
			on := v != 0
			cmd.Power = &on
		case OpMode:
			if m := Mode(v); m.Valid() {
				name := m.String()
				cmd.Mode = &name
			}
		case OpSetTemp:
			t := v
			cmd.Temperature = &t
		case OpFanSpeed:
			if f := FanSpeed(v); f.Valid() {
				name := f.String()
				cmd.FanMode = &name
			}
		case OpSwingUpDown:
			vertical, swingSeen = v != 0, true
		case OpSwingLfRig:
			horizontal, swingSeen = v != 0, true
		}
	}
	if swingSeen {
		s := DeviceState{SwingVertical: vertical, SwingHorizontal: horizontal}.SwingMode()
		cmd.SwingMode = &s
	}
	return cmd, nil
}
