// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import "fmt"

// Header carries the VER and ADR used for every request on a link
type Header struct {
	Ver string
	Adr string
}

// DefaultHeader is VER 25, ADR 01
var DefaultHeader = Header{Ver: DefaultVersion, Adr: DefaultAddress}

func (h Header) command(name, cid2, info string) Command {
	ver, adr := h.Ver, h.Adr
	if ver == "" {
		ver = DefaultVersion
	}
	if adr == "" {
		adr = DefaultAddress
	}
	return Command{Name: name, Ver: ver, Adr: adr, CID1: CID1Battery, CID2: cid2, Info: info}
}

// PackNumber creates a request for the number of packs on the bus
func (h Header) PackNumber() Command {
	return h.command("PackNumber", CID2PackNumber, "")
}

// SoftwareVersion creates a request for the BMS firmware version string
func (h Header) SoftwareVersion() Command {
	return h.command("SoftwareVersion", CID2SoftwareVersion, "")
}

// SerialNumber creates a request for the BMS and pack serial numbers
func (h Header) SerialNumber() Command {
	return h.command("SerialNumber", CID2SerialNumber, "")
}

// PackAnalogData creates an analog data request for one pack.
// Pack 255 (0xFF) selects every pack.
func (h Header) PackAnalogData(pack uint8) Command {
	return h.command("PackAnalogData", CID2PackAnalogData, fmt.Sprintf("%02X", pack))
}

// PackCapacity creates a pack capacity request.
// The BMS answers with pack 1 data whatever ADR or INFO is sent.
func (h Header) PackCapacity() Command {
	return h.command("PackCapacity", CID2PackCapacity, "")
}

// WarnInfo creates a warning/alarm request for every pack
func (h Header) WarnInfo() Command {
	return h.command("WarnInfo", CID2WarnInfo, InfoAllPacks)
}

// CommandName returns the human-readable name for a CID2 code
func CommandName(cid2 string) string {
	switch cid2 {
	case CID2PackNumber:
		return "PACK_NUMBER"
	case CID2PackAnalogData:
		return "PACK_ANALOG_DATA"
	case CID2SoftwareVersion:
		return "SOFTWARE_VERSION"
	case CID2SerialNumber:
		return "SERIAL_NUMBER"
	case CID2PackCapacity:
		return "PACK_CAPACITY"
	case CID2WarnInfo:
		return "WARN_INFO"
	default:
		return "UNKNOWN"
	}
}
