package gree

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Status column opcodes.
const (
	OpPower       = "Pow"
	OpMode        = "Mod"
	OpSetTemp     = "SetTem"
	OpTempUnit    = "TemUn"
	OpTempSensor  = "TemSen"
	OpFanSpeed    = "WdSpd"
	OpSwingUpDown = "SwUpDn"
	OpSwingLfRig  = "SwingLfRig"
	OpQuiet       = "Quiet"
	OpTurbo       = "Tur"
	OpLight       = "Lig"
	OpHealth      = "Health"
	OpSleep       = "SwhSlp"
)

// StatusColumns is the fixed column order of every status request. The dat
// vector of the reply is aligned to it by position.
var StatusColumns = [...]string{
	OpPower,
	OpMode,
	OpSetTemp,
	OpTempUnit,
	OpTempSensor,
	OpFanSpeed,
	OpSwingUpDown,
	OpSwingLfRig,
	OpQuiet,
	OpTurbo,
	OpLight,
	OpHealth,
	OpSleep,
}

// Column positions within StatusColumns.
const (
	colPower = iota
	colMode
	colSetTemp
	colTempUnit // requested, never mapped
	colTempSensor
	colFanSpeed
	colSwingUpDown
	colSwingLfRig
	colQuiet
	colTurbo
	colLight
	colHealth
	colSleep

	statusColumnCount
)

// Mode is the operating mode reported in the Mod column.
type Mode int

// Operating modes, numbered as on the wire.
const (
	ModeAuto Mode = iota
	ModeCool
	ModeDry
	ModeFan
	ModeHeat
)

var modeNames = [...]string{"auto", "cool", "dry", "fan", "heat"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Valid reports whether m is one of the five known modes.
func (m Mode) Valid() bool {
	return m >= 0 && int(m) < len(modeNames)
}

// MarshalText encodes known modes by name and unknown ones by number.
func (m Mode) MarshalText() ([]byte, error) {
	if m.Valid() {
		return []byte(modeNames[m]), nil
	}
	return []byte(strconv.Itoa(int(m))), nil
}

// UnmarshalText accepts the forms produced by MarshalText.
func (m *Mode) UnmarshalText(b []byte) error {
	if v, ok := ParseMode(string(b)); ok {
		*m = v
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("unknown mode %q", b)
	}
	*m = Mode(n)
	return nil
}

// ParseMode looks up a mode by its name.
func ParseMode(s string) (Mode, bool) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), true
		}
	}
	return 0, false
}

// FanSpeed is the fan speed reported in the WdSpd column.
type FanSpeed int

// Fan speeds, numbered as on the wire.
const (
	FanAuto FanSpeed = iota
	FanLow
	FanMediumLow
	FanMedium
	FanMediumHigh
	FanHigh
)

var fanNames = [...]string{"auto", "low", "medium-low", "medium", "medium-high", "high"}

func (f FanSpeed) String() string {
	if f.Valid() {
		return fanNames[f]
	}
	return "fan(" + strconv.Itoa(int(f)) + ")"
}

// Valid reports whether f is one of the six known speeds.
func (f FanSpeed) Valid() bool {
	return f >= 0 && int(f) < len(fanNames)
}

// MarshalText encodes known speeds by name and unknown ones by number.
func (f FanSpeed) MarshalText() ([]byte, error) {
	if f.Valid() {
		return []byte(fanNames[f]), nil
	}
	return []byte(strconv.Itoa(int(f))), nil
}

// UnmarshalText accepts the forms produced by MarshalText.
func (f *FanSpeed) UnmarshalText(b []byte) error {
	if v, ok := ParseFanSpeed(string(b)); ok {
		*f = v
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("unknown fan speed %q", b)
	}
	*f = FanSpeed(n)
	return nil
}

// ParseFanSpeed looks up a fan speed by its name.
func ParseFanSpeed(s string) (FanSpeed, bool) {
	for i, name := range fanNames {
		if name == s {
			return FanSpeed(i), true
		}
	}
	return 0, false
}

// DeviceState is a full climate snapshot decoded from one status reply.
// It is always replaced whole, never merged.
type DeviceState struct {
	Power              bool     `json:"power"`
	Mode               Mode     `json:"mode"`
	TargetTemperature  int      `json:"target_temperature"`
	CurrentTemperature int      `json:"current_temperature"`
	FanSpeed           FanSpeed `json:"fan_speed"`
	SwingVertical      bool     `json:"swing_vertical"`
	SwingHorizontal    bool     `json:"swing_horizontal"`
	Quiet              bool     `json:"quiet"`
	Turbo              bool     `json:"turbo"`
	Light              bool     `json:"light"`
	Health             bool     `json:"health"`
	Sleep              bool     `json:"sleep"`
}

// SwingMode folds the two swing axes into off, vertical, horizontal or both.
func (s DeviceState) SwingMode() string {
	switch {
	case s.SwingVertical && s.SwingHorizontal:
		return SwingBoth
	case s.SwingVertical:
		return SwingVertical
	case s.SwingHorizontal:
		return SwingHorizontal
	default:
		return SwingOff
	}
}

// statusRequest is the inner body of a status query.
type statusRequest struct {
	Cols []string `json:"cols"`
	MAC  string   `json:"mac"`
	T    string   `json:"t"`
}

// newStatusRequest builds the status query for mac with the fixed columns.
func newStatusRequest(mac string) statusRequest {
	return statusRequest{
		Cols: StatusColumns[:],
		MAC:  mac,
		T:    TagStatus,
	}
}

// statusReply is the decrypted body of a status answer.
type statusReply struct {
	T    string        `json:"t"`
	MAC  string        `json:"mac"`
	Cols []string      `json:"cols"`
	Dat  []json.Number `json:"dat"`
}

// decodeStatusReply turns decrypted pack JSON into a DeviceState.
func decodeStatusReply(inner []byte) (DeviceState, error) {
	var reply statusReply
	if err := json.Unmarshal(inner, &reply); err != nil {
		return DeviceState{}, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}

	dat := make([]int, len(reply.Dat))
	for i, n := range reply.Dat {
		v, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return DeviceState{}, fmt.Errorf("%w: dat[%d]=%q", ErrMalformedStatus, i, n)
			}
			v = int64(f)
		}
		dat[i] = int(v)
	}
	return DecodeStatus(dat)
}

// DecodeStatus maps a positional dat vector onto a DeviceState. Values are
// taken as-is; boolean columns are true when nonzero. Fewer than 13 values
// fail with ErrMalformedStatus and yield a zero state.
func DecodeStatus(dat []int) (DeviceState, error) {
	if len(dat) < statusColumnCount {
		return DeviceState{}, fmt.Errorf("%w: got %d values, want %d", ErrMalformedStatus, len(dat), statusColumnCount)
	}

	return DeviceState{
		Power:              dat[colPower] != 0,
		Mode:               Mode(dat[colMode]),
		TargetTemperature:  dat[colSetTemp],
		CurrentTemperature: dat[colTempSensor],
		FanSpeed:           FanSpeed(dat[colFanSpeed]),
		SwingVertical:      dat[colSwingUpDown] != 0,
		SwingHorizontal:    dat[colSwingLfRig] != 0,
		Quiet:              dat[colQuiet] != 0,
		Turbo:              dat[colTurbo] != 0,
		Light:              dat[colLight] != 0,
		Health:             dat[colHealth] != 0,
		Sleep:              dat[colSleep] != 0,
	}, nil
}

// EncodeStatus is the inverse of DecodeStatus. The unit column is written
// as 0 (Celsius).
func EncodeStatus(s DeviceState) []int {
	dat := make([]int, statusColumnCount)
	dat[colPower] = boolInt(s.Power)
	dat[colMode] = int(s.Mode)
	dat[colSetTemp] = s.TargetTemperature
	dat[colTempUnit] = 0
	dat[colTempSensor] = s.CurrentTemperature
	dat[colFanSpeed] = int(s.FanSpeed)
	dat[colSwingUpDown] = boolInt(s.SwingVertical)
	dat[colSwingLfRig] = boolInt(s.SwingHorizontal)
	dat[colQuiet] = boolInt(s.Quiet)
	dat[colTurbo] = boolInt(s.Turbo)
	dat[colLight] = boolInt(s.Light)
	dat[colHealth] = boolInt(s.Health)
	dat[colSleep] = boolInt(s.Sleep)
	return dat
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
