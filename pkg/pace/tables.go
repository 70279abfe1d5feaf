// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import "fmt"

// Bitfield identifies one of the 8-bit state fields in a WarnInfo pack block
type Bitfield int

// Bitfields in wire order. Balancing states are kept as raw text and have no
// name table.
const (
	ProtectState1 Bitfield = iota
	ProtectState2
	InstructionState
	ControlState
	FaultState
	BalanceState1
	BalanceState2
	WarnState1
	WarnState2
)

// String returns the label used in assembled warning text
func (f Bitfield) String() string {
	switch f {
	case ProtectState1:
		return "Protection State 1"
	case ProtectState2:
		return "Protection State 2"
	case InstructionState:
		return "Instruction State"
	case ControlState:
		return "Control State"
	case FaultState:
		return "Fault State"
	case BalanceState1:
		return "Balance State 1"
	case BalanceState2:
		return "Balance State 2"
	case WarnState1:
		return "Warning State 1"
	case WarnState2:
		return "Warning State 2"
	default:
		return fmt.Sprintf("Bitfield(%d)", int(f))
	}
}

// bitNames maps (bitfield, bit position 0..7) to a description
var bitNames = map[Bitfield][8]string{
	ProtectState1: {
		"Cell overvoltage protection",
		"Cell undervoltage protection",
		"Total overvoltage protection",
		"Total undervoltage protection",
		"Charging overcurrent protection",
		"Discharging overcurrent protection",
		"Short circuit protection",
		"Undefined",
	},
	ProtectState2: {
		"Charging high temperature protection",
		"Discharging high temperature protection",
		"Charging low temperature protection",
		"Discharging low temperature protection",
		"MOSFET high temperature protection",
		"Environment high temperature protection",
		"Environment low temperature protection",
		"Fully charged",
	},
	InstructionState: {
		"Current limit on",
		"Charge FET on",
		"Discharge FET on",
		"Pack indicator on",
		"Reverse connection",
		"AC in",
		"Undefined",
		"Heart",
	},
	ControlState: {
		"Buzzer warning enabled",
		"Undefined",
		"Undefined",
		"Undefined",
		"Heater on",
		"Current limit enabled",
		"Undefined",
		"Undefined",
	},
	FaultState: {
		"Charging MOSFET fault",
		"Discharging MOSFET fault",
		"Temperature sensor fault",
		"Undefined",
		"Battery cell fault",
		"Front end sampling communication fault",
		"Undefined",
		"Undefined",
	},
	WarnState1: {
		"Cell overvoltage warning",
		"Cell undervoltage warning",
		"Total overvoltage warning",
		"Total undervoltage warning",
		"Charging overcurrent warning",
		"Discharging overcurrent warning",
		"Undefined",
		"Undefined",
	},
	WarnState2: {
		"Charging high temperature warning",
		"Discharging high temperature warning",
		"Charging low temperature warning",
		"Discharging low temperature warning",
		"Environment high temperature warning",
		"Environment low temperature warning",
		"MOSFET high temperature warning",
		"Low capacity warning",
	},
}

// describedFields are the bitfields whose set bits appear in warning text
var describedFields = []Bitfield{ProtectState1, ProtectState2, ControlState, FaultState, WarnState1, WarnState2}

// BitName returns the description of one bit, or "" if the field has no table
func BitName(f Bitfield, bit int) string {
	names, ok := bitNames[f]
	if !ok || bit < 0 || bit > 7 {
		return ""
	}
	return names[bit]
}

// SetBits lists the descriptions of every set bit, lowest first
func SetBits(f Bitfield, value uint8) []string {
	var out []string
	for x := range 8 {
		if value&(1<<x) != 0 {
			out = append(out, BitName(f, x))
		}
	}
	return out
}

// warningStates maps per-value warning codes to their description
var warningStates = map[int]string{
	0x00: "Normal",
	0x01: "Below lower limit",
	0x02: "Above upper limit",
	0xF0: "Other fault",
}

// WarningState describes a cell, temperature, current or voltage warning code
func WarningState(code int) string {
	if s, ok := warningStates[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown state 0x%02X", code)
}
