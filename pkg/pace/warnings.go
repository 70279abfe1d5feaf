// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"fmt"
	"strings"
)

// DecodeWarnings decodes a WarnInfo INFO payload.
//
// Each pack block carries per-cell and per-sensor warning codes, three
// single codes, then the state bitfields in wire order. Set bits of the
// described fields are joined into WarnRecord.Warnings; the instruction
// state only feeds the boolean status fields. The same info-flag skip as
// DecodeAnalog applies after every pack block.
func DecodeWarnings(info []byte) (WarnData, error) {
	r := newFieldReader(info, analogStart)

	packs, err := r.u8("pack count")
	if err != nil {
		return WarnData{}, err
	}

	data := WarnData{Packs: make([]WarnRecord, 0, packs)}
	for p := 1; p <= packs; p++ {
		rec, cells, err := decodeWarnPack(r, p)
		if err != nil {
			return WarnData{}, err
		}
		skipInfoFlag(r, cells)
		data.Packs = append(data.Packs, rec)
	}
	return data, nil
}

func decodeWarnPack(r *fieldReader, p int) (WarnRecord, int, error) {
	rec := WarnRecord{Pack: p, States: make(map[Bitfield]uint8, 9)}
	var text []string

	cells, err := r.u8(packField(p, "cell warning count"))
	if err != nil {
		return rec, 0, err
	}
	for c := 1; c <= cells; c++ {
		code, err := r.u8(packField(p, fmt.Sprintf("cell %d warning", c)))
		if err != nil {
			return rec, 0, err
		}
		if code != 0 {
			text = append(text, fmt.Sprintf("cell %d %s", c, WarningState(code)))
		}
	}

	temps, err := r.u8(packField(p, "temperature warning count"))
	if err != nil {
		return rec, 0, err
	}
	for t := 1; t <= temps; t++ {
		code, err := r.u8(packField(p, fmt.Sprintf("temp %d warning", t)))
		if err != nil {
			return rec, 0, err
		}
		if code != 0 {
			text = append(text, fmt.Sprintf("temp %d %s", t, WarningState(code)))
		}
	}

	for _, name := range []string{"charge current", "total voltage", "discharge current"} {
		code, err := r.u8(packField(p, name+" warning"))
		if err != nil {
			return rec, 0, err
		}
		if code != 0 {
			text = append(text, name+" "+WarningState(code))
		}
	}

	for f := ProtectState1; f <= WarnState2; f++ {
		v, err := r.u8(packField(p, strings.ToLower(f.String())))
		if err != nil {
			return rec, 0, err
		}
		rec.States[f] = uint8(v)
	}

	for _, f := range describedFields {
		if names := SetBits(f, rec.States[f]); len(names) > 0 {
			text = append(text, f.String()+": "+strings.Join(names, " | "))
		}
	}
	rec.Warnings = strings.Join(text, ", ")

	rec.Balancing1 = fmt.Sprintf("%08b", rec.States[BalanceState1])
	rec.Balancing2 = fmt.Sprintf("%08b", rec.States[BalanceState2])

	ps1, ps2, inst := rec.States[ProtectState1], rec.States[ProtectState2], rec.States[InstructionState]
	rec.ShortCircuit = bit(ps1, 6)
	rec.OverDischargeCurrent = bit(ps1, 5)
	rec.OverChargeCurrent = bit(ps1, 4)
	rec.FullyCharged = bit(ps2, 7)
	rec.CurrentLimit = bit(inst, 0)
	rec.ChargeFET = bit(inst, 1)
	rec.DischargeFET = bit(inst, 2)
	rec.Indicator = bit(inst, 3)
	rec.Reversed = bit(inst, 4)
	rec.ACIn = bit(inst, 5)
	rec.Heart = bit(inst, 7)

	return rec, cells, nil
}

func bit(v uint8, n uint) bool {
	return v>>n&1 == 1
}
