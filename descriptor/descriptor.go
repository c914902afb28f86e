// Package descriptor holds the bus and parameter descriptor tables that
// describe a guest's audio I/O and controls.
//
// Tables are immutable once loaded. Bus order defines the memory layout of
// the guest's input and output regions: each input (or output) bus takes one
// BlockSize window per channel, laid out contiguously in declaration order.
package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/wippyai/wasm-audio/errors"
)

// Direction tells whether a bus or parameter flows into or out of the guest.
type Direction uint8

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Bus declares one audio bus.
type Bus struct {
	Name      string
	Direction Direction
	Channels  int
}

// Parameter declares one control. Index is its position in the table and the
// handle used across the guest ABI.
type Parameter struct {
	Name      string
	Direction Direction
	Default   float32
	Index     int
	// Steps is the number of discrete steps, or 0 for a continuous control.
	Steps int
}

// Tables is the full descriptor set for one guest.
type Tables struct {
	Buses      []Bus
	Parameters []Parameter
}

// Window locates one channel's block inside a guest region.
type Window struct {
	Bus     int    // index into Tables.Buses
	Channel int    // channel within the bus
	Offset  uint32 // byte offset from the region base
}

type busJSON struct {
	Name   string `json:"name,omitempty"`
	Output bool   `json:"output"`
	Stereo bool   `json:"stereo"`
}

type parameterJSON struct {
	Name         string  `json:"name"`
	Output       bool    `json:"output"`
	DefaultValue float32 `json:"defaultValue"`
	Step         int     `json:"step,omitempty"`
}

type tablesJSON struct {
	Buses      []busJSON       `json:"buses"`
	Parameters []parameterJSON `json:"parameters"`
}

// Load reads and validates tables from a JSON file.
func Load(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ReadFile(errors.PhaseConfig, "descriptor file", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates tables from JSON of the form
//
//	{"buses": [{"output": false, "stereo": true}],
//	 "parameters": [{"name": "Gain", "output": false, "defaultValue": 0.5}]}
func Parse(data []byte) (*Tables, error) {
	var raw tablesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidConfig, err, "decode descriptor JSON")
	}

	t := &Tables{
		Buses:      make([]Bus, len(raw.Buses)),
		Parameters: make([]Parameter, len(raw.Parameters)),
	}
	for i, b := range raw.Buses {
		bus := Bus{Name: b.Name, Channels: 1}
		if b.Output {
			bus.Direction = Output
		}
		if b.Stereo {
			bus.Channels = 2
		}
		t.Buses[i] = bus
	}
	for i, p := range raw.Parameters {
		param := Parameter{Name: p.Name, Default: p.DefaultValue, Index: i, Steps: p.Step}
		if p.Output {
			param.Direction = Output
		}
		t.Parameters[i] = param
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// MarshalJSON encodes the tables in the same shape Parse accepts.
func (t *Tables) MarshalJSON() ([]byte, error) {
	raw := tablesJSON{
		Buses:      make([]busJSON, len(t.Buses)),
		Parameters: make([]parameterJSON, len(t.Parameters)),
	}
	for i, b := range t.Buses {
		raw.Buses[i] = busJSON{Name: b.Name, Output: b.Direction == Output, Stereo: b.Channels == 2}
	}
	for i, p := range t.Parameters {
		raw.Parameters[i] = parameterJSON{
			Name:         p.Name,
			Output:       p.Direction == Output,
			DefaultValue: p.Default,
			Step:         p.Steps,
		}
	}
	return json.Marshal(raw)
}

// Validate checks channel counts, parameter indices and names.
func (t *Tables) Validate() error {
	for i, b := range t.Buses {
		if b.Channels != 1 && b.Channels != 2 {
			return errors.InvalidConfig(
				[]string{"buses", strconv.Itoa(i), "channels"}, b.Channels,
				"channel count must be 1 or 2")
		}
		if b.Direction != Input && b.Direction != Output {
			return errors.InvalidConfig(
				[]string{"buses", strconv.Itoa(i), "direction"}, b.Direction, "unknown direction")
		}
	}

	seen := make(map[string]int, len(t.Parameters))
	for i, p := range t.Parameters {
		path := []string{"parameters", strconv.Itoa(i)}
		if p.Index != i {
			return errors.InvalidConfig(append(path, "index"), p.Index,
				fmt.Sprintf("index must equal table position %d", i))
		}
		if p.Name == "" {
			return errors.InvalidConfig(append(path, "name"), p.Name, "parameter has no name")
		}
		if prev, dup := seen[p.Name]; dup {
			return errors.InvalidConfig(append(path, "name"), p.Name,
				fmt.Sprintf("duplicate of parameter %d", prev))
		}
		seen[p.Name] = i
		if p.Direction != Input && p.Direction != Output {
			return errors.InvalidConfig(append(path, "direction"), p.Direction, "unknown direction")
		}
		if p.Steps < 0 {
			return errors.InvalidConfig(append(path, "step"), p.Steps, "step count must not be negative")
		}
	}
	return nil
}

// BusIndices returns the indices of buses flowing in direction dir, in table order.
func (t *Tables) BusIndices(dir Direction) []int {
	var out []int
	for i, b := range t.Buses {
		if b.Direction == dir {
			out = append(out, i)
		}
	}
	return out
}

// Channels returns the total channel count across buses in direction dir.
func (t *Tables) Channels(dir Direction) int {
	n := 0
	for _, b := range t.Buses {
		if b.Direction == dir {
			n += b.Channels
		}
	}
	return n
}

// Windows lays out one window of blockSize float32 samples per channel for
// every bus in direction dir. Mono buses take one window, stereo buses two
// consecutive ones.
func (t *Tables) Windows(dir Direction, blockSize int) []Window {
	var (
		out    []Window
		offset uint32
	)
	stride := uint32(blockSize) * 4
	for i, b := range t.Buses {
		if b.Direction != dir {
			continue
		}
		for ch := 0; ch < b.Channels; ch++ {
			out = append(out, Window{Bus: i, Channel: ch, Offset: offset})
			offset += stride
		}
	}
	return out
}

// ParameterIndices returns the indices of parameters in direction dir.
func (t *Tables) ParameterIndices(dir Direction) []int {
	var out []int
	for _, p := range t.Parameters {
		if p.Direction == dir {
			out = append(out, p.Index)
		}
	}
	return out
}

// Lookup finds a parameter by name.
func (t *Tables) Lookup(name string) (Parameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Defaults returns every parameter's default value indexed by parameter index.
func (t *Tables) Defaults() []float32 {
	out := make([]float32, len(t.Parameters))
	for _, p := range t.Parameters {
		out[p.Index] = p.Default
	}
	return out
}
