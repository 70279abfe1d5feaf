// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"fmt"
	"strings"
)

// FormatFrame formats a raw frame into a field-by-field breakdown.
// Frames too short for a field show what is available.
func FormatFrame(raw []byte) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Frame (%d bytes): %s\n", len(raw), printable(raw))
	if len(raw) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "  SOI:     0x%02X\n", raw[0])

	field := func(name string, start, end int) {
		if start >= len(raw) {
			return
		}
		end = min(end, len(raw))
		fmt.Fprintf(&b, "  %-8s %s\n", name+":", raw[start:end])
	}
	field("VER", offsetVER, offsetADR)
	field("ADR", offsetADR, offsetCID1)
	field("CID1", offsetCID1, offsetRTN)
	if len(raw) >= offsetLCHKSUM {
		cid2 := string(raw[offsetRTN:offsetLCHKSUM])
		fmt.Fprintf(&b, "  CID2/RTN: %s (%s)\n", cid2, CommandName(cid2))
	}
	field("LCHKSUM", offsetLCHKSUM, offsetLENID)
	if len(raw) < offsetINFO {
		field("LENID", offsetLENID, offsetINFO)
		return b.String()
	}
	lenid, err := parseHex(raw[offsetLENID:offsetINFO])
	if err != nil {
		field("LENID", offsetLENID, offsetINFO)
		return b.String()
	}
	fmt.Fprintf(&b, "  LENID:   %s (%d)\n", raw[offsetLENID:offsetINFO], lenid)

	infoEnd := min(offsetINFO+lenid, len(raw))
	field("INFO", offsetINFO, infoEnd)
	field("CHKSUM", infoEnd, infoEnd+chksumSize)
	if raw[len(raw)-1] == EOI {
		b.WriteString("  EOI:     0x0D\n")
	}
	return b.String()
}

// printable renders frame bytes with control characters escaped
func printable(raw []byte) string {
	var b strings.Builder
	for _, c := range raw {
		switch {
		case c == EOI:
			b.WriteString(`\r`)
		case c < 0x20 || c > 0x7E:
			fmt.Fprintf(&b, `\x%02X`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FormatRecord formats a decoded record into a human-readable summary
func FormatRecord(rec Record) string {
	switch r := rec.(type) {
	case AnalogData:
		var b strings.Builder
		for _, p := range r.Packs {
			b.WriteString(formatAnalogPack(p))
		}
		return b.String()

	case PackCapacityRecord:
		return fmt.Sprintf("Capacity: remaining %d mAh, full %d mAh, design %d mAh, SOC %.2f%%, SOH %.2f%%\n",
			r.RemainingCapacity, r.FullCapacity, r.DesignCapacity, r.SOC, r.SOH)

	case WarnData:
		var b strings.Builder
		for _, p := range r.Packs {
			warnings := p.Warnings
			if warnings == "" {
				warnings = NoWarnings
			}
			fmt.Fprintf(&b, "Pack %d warnings: %s\n", p.Pack, warnings)
			fmt.Fprintf(&b, "  Balancing: %s %s\n", p.Balancing1, p.Balancing2)
			fmt.Fprintf(&b, "  Charge FET: %s, Discharge FET: %s, Current limit: %s, AC in: %s\n",
				onOff(p.ChargeFET), onOff(p.DischargeFET), onOff(p.CurrentLimit), onOff(p.ACIn))
		}
		return b.String()

	case Identity:
		var b strings.Builder
		if r.Version != "" {
			fmt.Fprintf(&b, "BMS version: %s\n", r.Version)
		}
		if r.BMSSerial != "" {
			fmt.Fprintf(&b, "BMS serial: %s\n", r.BMSSerial)
		}
		if r.PackSerial != "" {
			fmt.Fprintf(&b, "Pack serial: %s\n", r.PackSerial)
		}
		return b.String()

	case PackCount:
		return fmt.Sprintf("Packs: %d\n", r.Packs)

	case nil:
		return "(no record)\n"

	default:
		var b strings.Builder
		for _, rd := range rec.Readings() {
			fmt.Fprintf(&b, "%s: %s\n", rd.Key, rd)
		}
		return b.String()
	}
}

func formatAnalogPack(p PackAnalogRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pack %d: %.3f V, %.2f A, SOC %.2f%%, SOH %.2f%%, %d cycles\n",
		p.Pack, p.Voltage, p.Current, p.SOC, p.SOH, p.Cycles)

	cells := make([]string, len(p.CellVoltages))
	for i, mv := range p.CellVoltages {
		cells[i] = fmt.Sprintf("%d", mv)
	}
	fmt.Fprintf(&b, "  Cells (mV): %s (max diff %d)\n", strings.Join(cells, " "), p.CellMaxDiff)

	temps := make([]string, len(p.Temperatures))
	for i, t := range p.Temperatures {
		temps[i] = fmt.Sprintf("%.1f", t)
	}
	fmt.Fprintf(&b, "  Temps (°C): %s\n", strings.Join(temps, " "))
	fmt.Fprintf(&b, "  Capacity: remaining %d mAh, full %d mAh, design %d mAh\n",
		p.RemainingCapacity, p.FullCapacity, p.DesignCapacity)
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
