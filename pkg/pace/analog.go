// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import "fmt"

// analogStart skips the leading INFO data-flag byte
const analogStart = 2

// DecodeAnalog decodes a PackAnalogData INFO payload.
//
// Multi-pack payloads are parsed with two heuristics observed on real
// firmware. A pack whose cell count differs from the previous pack's is
// re-read one field later, and a byte that does not repeat the cell count
// after a pack block is skipped as an optional info flag. Neither is
// guaranteed to be correct for every firmware variant.
func DecodeAnalog(info []byte) (AnalogData, error) {
	r := newFieldReader(info, analogStart)

	packs, err := r.u8("pack count")
	if err != nil {
		return AnalogData{}, err
	}

	data := AnalogData{Packs: make([]PackAnalogRecord, 0, packs)}
	prevCells := 0

	for p := 1; p <= packs; p++ {
		rec := PackAnalogRecord{Pack: p}

		cells, err := r.u8(packField(p, "cell count"))
		if err != nil {
			return AnalogData{}, err
		}
		// The mismatched read already advanced one field
		if p > 1 && cells != prevCells {
			cells, err = r.u8(packField(p, "cell count"))
			if err != nil {
				return AnalogData{}, err
			}
			if cells != prevCells {
				return AnalogData{}, decodeError(packField(p, "cell count"), ErrCellCount,
					fmt.Sprintf("got %d cells, previous pack had %d", cells, prevCells))
			}
		}
		prevCells = cells

		rec.CellVoltages = make([]int, cells)
		minMV, maxMV := 0, 0
		for i := range cells {
			mv, err := r.u16(packField(p, fmt.Sprintf("cell %d voltage", i+1)))
			if err != nil {
				return AnalogData{}, err
			}
			rec.CellVoltages[i] = mv
			if i == 0 || mv < minMV {
				minMV = mv
			}
			if i == 0 || mv > maxMV {
				maxMV = mv
			}
		}
		rec.CellMaxDiff = maxMV - minMV

		temps, err := r.u8(packField(p, "temperature count"))
		if err != nil {
			return AnalogData{}, err
		}
		rec.Temperatures = make([]float64, temps)
		for i := range temps {
			raw, err := r.u16(packField(p, fmt.Sprintf("temperature %d", i+1)))
			if err != nil {
				return AnalogData{}, err
			}
			rec.Temperatures[i] = float64(raw-kelvinOffset) / 10
		}

		current, err := r.u16(packField(p, "current"))
		if err != nil {
			return AnalogData{}, err
		}
		if current >= currentSignBit {
			current -= currentWrap
		}
		rec.Current = float64(current) / 100

		voltage, err := r.u16(packField(p, "voltage"))
		if err != nil {
			return AnalogData{}, err
		}
		rec.Voltage = float64(voltage) / 1000

		if rec.RemainingCapacity, err = readCapacity(r, packField(p, "remaining capacity")); err != nil {
			return AnalogData{}, err
		}

		// Capacity field count (always 3)
		r.skip(2)

		if rec.FullCapacity, err = readCapacity(r, packField(p, "full capacity")); err != nil {
			return AnalogData{}, err
		}
		if rec.SOC, err = percent(rec.RemainingCapacity, rec.FullCapacity, packField(p, "full capacity")); err != nil {
			return AnalogData{}, err
		}

		if rec.Cycles, err = r.u16(packField(p, "cycles")); err != nil {
			return AnalogData{}, err
		}

		if rec.DesignCapacity, err = readCapacity(r, packField(p, "design capacity")); err != nil {
			return AnalogData{}, err
		}
		if rec.SOH, err = percent(rec.FullCapacity, rec.DesignCapacity, packField(p, "design capacity")); err != nil {
			return AnalogData{}, err
		}

		r.skip(2)
		skipInfoFlag(r, cells)

		data.Packs = append(data.Packs, rec)
	}

	return data, nil
}

// readCapacity reads a capacity field in units of 10 mAh
func readCapacity(r *fieldReader, field string) (int, error) {
	v, err := r.u16(field)
	if err != nil {
		return 0, err
	}
	return v * 10, nil
}

// percent returns num/den as a percentage rounded to two decimals
func percent(num, den int, field string) (float64, error) {
	if den == 0 {
		return 0, decodeError(field, ErrDivideByZero, "capacity is zero")
	}
	return round(float64(num)/float64(den)*100, 2), nil
}

// skipInfoFlag skips one field after a pack block unless the next byte
// repeats the cell count
func skipInfoFlag(r *fieldReader, cells int) {
	if !r.more() {
		return
	}
	if next, ok := r.peekByte(); !ok || next != cells {
		r.skip(2)
	}
}

func packField(pack int, field string) string {
	return fmt.Sprintf("pack %d %s", pack, field)
}
