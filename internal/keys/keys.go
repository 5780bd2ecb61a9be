// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keys

import (
	"fmt"
	"sort"
)

// Code is the numeric key code a Mediaroom box expects on its control channel
type Code int

// Table maps symbolic key names to key codes
type Table map[string]Code

// Symbolic key names used by the remote controller itself
const (
	Power        = "Power"
	NumberPrefix = "Number"
)

// Remote control codes for Mediaroom set-top boxes
var defaultCodes = Table{
	// Number Keys
	"Number0": 48,
	"Number1": 49,
	"Number2": 50,
	"Number3": 51,
	"Number4": 52,
	"Number5": 53,
	"Number6": 54,
	"Number7": 55,
	"Number8": 56,
	"Number9": 57,

	// Power and Audio
	Power:     61440,
	"Mute":    57349,
	"VolUp":   57347,
	"VolDown": 57348,

	// Channels
	"ChanUp":   57345,
	"ChanDown": 57346,
	"Last":     57360,

	// Navigation
	"Up":    57600,
	"Down":  57601,
	"Left":  57602,
	"Right": 57603,
	"OK":    13,
	"Back":  8,
	"Menu":  36,
	"Guide": 57361,
	"Info":  57362,
	"Exit":  27,

	// Playback
	"PlayPause": 57365,
	"Stop":      57366,
	"Rewind":    57367,
	"Forward":   57368,
	"Record":    57369,
	"Skip":      57370,
	"Replay":    57371,

	// Colour Keys
	"Red":    57374,
	"Green":  57375,
	"Yellow": 57376,
	"Blue":   57377,
}

// Default returns a fresh copy of the built-in key table
func Default() Table {
	t := make(Table, len(defaultCodes))
	for name, code := range defaultCodes {
		t[name] = code
	}
	return t
}

// Lookup returns the code registered under name
func (t Table) Lookup(name string) (Code, bool) {
	code, ok := t[name]
	return code, ok
}

// Digit returns the code for a single decimal digit
func (t Table) Digit(d int) (Code, error) {
	if d < 0 || d > 9 {
		return 0, fmt.Errorf("digit out of range: %d", d)
	}
	name := fmt.Sprintf("%s%d", NumberPrefix, d)
	code, ok := t[name]
	if !ok {
		return 0, fmt.Errorf("key table has no entry for %s", name)
	}
	return code, nil
}

// Merge returns a new table with overrides applied on top of t
func (t Table) Merge(overrides map[string]int) Table {
	merged := make(Table, len(t)+len(overrides))
	for name, code := range t {
		merged[name] = code
	}
	for name, code := range overrides {
		merged[name] = Code(code)
	}
	return merged
}

// Names returns the key names in sorted order
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
