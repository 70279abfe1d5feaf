// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"fmt"
	"math"
	"strconv"
)

// Record is a decoded INFO payload. Records are produced fresh for every
// response and never mutated after decode.
type Record interface {
	// Kind names the record type ("analog", "capacity", "warnings", ...)
	Kind() string
	// Readings flattens the record into individually publishable values
	Readings() []Reading
}

// Reading is one decoded scalar or text value
type Reading struct {
	Pack  int    // 1-based pack index; 0 for values that describe the whole BMS
	Key   string // field name, e.g. "v_cells/cell_3" or "soc"
	Value float64
	Text  string // set for textual values; Value is unused when Text != ""
}

// IsText reports whether the reading carries text rather than a number
func (r Reading) IsText() bool {
	return r.Text != ""
}

// String renders the reading value for publishing
func (r Reading) String() string {
	if r.Text != "" {
		return r.Text
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// Identity holds the BMS firmware version and serial numbers
type Identity struct {
	Version    string `json:"bms_version,omitempty" cbor:"1,keyasint,omitempty"`
	BMSSerial  string `json:"bms_sn,omitempty" cbor:"2,keyasint,omitempty"`
	PackSerial string `json:"pack_sn,omitempty" cbor:"3,keyasint,omitempty"`
}

// Kind implements Record
func (Identity) Kind() string { return "identity" }

// Readings implements Record
func (id Identity) Readings() []Reading {
	var out []Reading
	if id.Version != "" {
		out = append(out, Reading{Key: "bms_version", Text: id.Version})
	}
	if id.BMSSerial != "" {
		out = append(out, Reading{Key: "bms_sn", Text: id.BMSSerial})
	}
	if id.PackSerial != "" {
		out = append(out, Reading{Key: "pack_sn", Text: id.PackSerial})
	}
	return out
}

// PackCount is the decoded PackNumber response
type PackCount struct {
	Packs int `json:"packs" cbor:"1,keyasint"`
}

// Kind implements Record
func (PackCount) Kind() string { return "pack_number" }

// Readings implements Record
func (pc PackCount) Readings() []Reading {
	return []Reading{{Key: "packs", Value: float64(pc.Packs)}}
}

// PackAnalogRecord is the analog telemetry for one pack
type PackAnalogRecord struct {
	Pack              int       `json:"pack" cbor:"1,keyasint"`
	CellVoltages      []int     `json:"cell_voltages_mv" cbor:"2,keyasint"`
	CellMaxDiff       int       `json:"cell_max_diff_mv" cbor:"3,keyasint"`
	Temperatures      []float64 `json:"temperatures_c" cbor:"4,keyasint"`
	Current           float64   `json:"current_a" cbor:"5,keyasint"`
	Voltage           float64   `json:"voltage_v" cbor:"6,keyasint"`
	RemainingCapacity int       `json:"remaining_capacity_mah" cbor:"7,keyasint"`
	FullCapacity      int       `json:"full_capacity_mah" cbor:"8,keyasint"`
	DesignCapacity    int       `json:"design_capacity_mah" cbor:"9,keyasint"`
	Cycles            int       `json:"cycles" cbor:"10,keyasint"`
	SOC               float64   `json:"soc" cbor:"11,keyasint"`
	SOH               float64   `json:"soh" cbor:"12,keyasint"`
}

// Readings flattens the pack record
func (r PackAnalogRecord) Readings() []Reading {
	out := make([]Reading, 0, len(r.CellVoltages)+len(r.Temperatures)+10)
	for i, mv := range r.CellVoltages {
		out = append(out, Reading{Pack: r.Pack, Key: fmt.Sprintf("v_cells/cell_%d", i+1), Value: float64(mv)})
	}
	out = append(out, Reading{Pack: r.Pack, Key: "cells_max_diff_calc", Value: float64(r.CellMaxDiff)})
	for i, t := range r.Temperatures {
		out = append(out, Reading{Pack: r.Pack, Key: fmt.Sprintf("temps/temp_%d", i+1), Value: round(t, 1)})
	}
	return append(out,
		Reading{Pack: r.Pack, Key: "i_pack", Value: r.Current},
		Reading{Pack: r.Pack, Key: "v_pack", Value: r.Voltage},
		Reading{Pack: r.Pack, Key: "i_remain_cap", Value: float64(r.RemainingCapacity)},
		Reading{Pack: r.Pack, Key: "i_full_cap", Value: float64(r.FullCapacity)},
		Reading{Pack: r.Pack, Key: "soc", Value: r.SOC},
		Reading{Pack: r.Pack, Key: "cycles", Value: float64(r.Cycles)},
		Reading{Pack: r.Pack, Key: "i_design_cap", Value: float64(r.DesignCapacity)},
		Reading{Pack: r.Pack, Key: "soh", Value: r.SOH},
	)
}

// AnalogData is the decoded PackAnalogData response for every reported pack
type AnalogData struct {
	Packs []PackAnalogRecord `json:"packs" cbor:"1,keyasint"`
}

// Kind implements Record
func (AnalogData) Kind() string { return "analog" }

// Readings implements Record
func (a AnalogData) Readings() []Reading {
	var out []Reading
	for _, p := range a.Packs {
		out = append(out, p.Readings()...)
	}
	return out
}

// PackCapacityRecord is the whole-pack capacity view
type PackCapacityRecord struct {
	RemainingCapacity int     `json:"remaining_capacity_mah" cbor:"1,keyasint"`
	FullCapacity      int     `json:"full_capacity_mah" cbor:"2,keyasint"`
	DesignCapacity    int     `json:"design_capacity_mah" cbor:"3,keyasint"`
	SOC               float64 `json:"soc" cbor:"4,keyasint"`
	SOH               float64 `json:"soh" cbor:"5,keyasint"`
}

// Kind implements Record
func (PackCapacityRecord) Kind() string { return "capacity" }

// Readings implements Record
func (c PackCapacityRecord) Readings() []Reading {
	return []Reading{
		{Key: "pack_remain_cap", Value: float64(c.RemainingCapacity)},
		{Key: "pack_full_cap", Value: float64(c.FullCapacity)},
		{Key: "pack_design_cap", Value: float64(c.DesignCapacity)},
		{Key: "pack_soc", Value: c.SOC},
		{Key: "pack_soh", Value: c.SOH},
	}
}

// WarnRecord is the decoded warning/alarm state of one pack
type WarnRecord struct {
	Pack     int    `json:"pack" cbor:"1,keyasint"`
	Warnings string `json:"warnings" cbor:"2,keyasint"`

	// Balancing bitfields as 8-character binary text
	Balancing1 string `json:"balancing1" cbor:"3,keyasint"`
	Balancing2 string `json:"balancing2" cbor:"4,keyasint"`

	ShortCircuit         bool `json:"prot_short_circuit" cbor:"5,keyasint"`
	OverDischargeCurrent bool `json:"prot_discharge_current" cbor:"6,keyasint"`
	OverChargeCurrent    bool `json:"prot_charge_current" cbor:"7,keyasint"`
	FullyCharged         bool `json:"fully" cbor:"8,keyasint"`
	CurrentLimit         bool `json:"current_limit" cbor:"9,keyasint"`
	ChargeFET            bool `json:"charge_fet" cbor:"10,keyasint"`
	DischargeFET         bool `json:"discharge_fet" cbor:"11,keyasint"`
	Indicator            bool `json:"pack_indicate" cbor:"12,keyasint"`
	Reversed             bool `json:"reverse" cbor:"13,keyasint"`
	ACIn                 bool `json:"ac_in" cbor:"14,keyasint"`
	Heart                bool `json:"heart" cbor:"15,keyasint"`

	// Raw state bytes in wire order
	States map[Bitfield]uint8 `json:"-" cbor:"-"`
}

// Readings flattens the warning record
func (w WarnRecord) Readings() []Reading {
	// Empty text still has to reach the sink so a cleared warning is visible
	warnings := Reading{Pack: w.Pack, Key: "warnings", Text: w.Warnings}
	if w.Warnings == "" {
		warnings = Reading{Pack: w.Pack, Key: "warnings", Text: NoWarnings}
	}
	return []Reading{
		warnings,
		{Pack: w.Pack, Key: "balancing1", Text: w.Balancing1},
		{Pack: w.Pack, Key: "balancing2", Text: w.Balancing2},
		flag(w.Pack, "prot_short_circuit", w.ShortCircuit),
		flag(w.Pack, "prot_discharge_current", w.OverDischargeCurrent),
		flag(w.Pack, "prot_charge_current", w.OverChargeCurrent),
		flag(w.Pack, "fully", w.FullyCharged),
		flag(w.Pack, "current_limit", w.CurrentLimit),
		flag(w.Pack, "charge_fet", w.ChargeFET),
		flag(w.Pack, "discharge_fet", w.DischargeFET),
		flag(w.Pack, "pack_indicate", w.Indicator),
		flag(w.Pack, "reverse", w.Reversed),
		flag(w.Pack, "ac_in", w.ACIn),
		flag(w.Pack, "heart", w.Heart),
	}
}

// NoWarnings is published in place of an empty warning list
const NoWarnings = "none"

// WarnData is the decoded WarnInfo response for every reported pack
type WarnData struct {
	Packs []WarnRecord `json:"packs" cbor:"1,keyasint"`
}

// Kind implements Record
func (WarnData) Kind() string { return "warnings" }

// Readings implements Record
func (w WarnData) Readings() []Reading {
	var out []Reading
	for _, p := range w.Packs {
		out = append(out, p.Readings()...)
	}
	return out
}

func flag(pack int, key string, set bool) Reading {
	if set {
		return Reading{Pack: pack, Key: key, Value: 1}
	}
	return Reading{Pack: pack, Key: key, Value: 0}
}

// round rounds x to the given number of decimal places, halves to even
func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.RoundToEven(x*p) / p
}
