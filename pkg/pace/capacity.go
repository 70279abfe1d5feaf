// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

// DecodeCapacity decodes a PackCapacity INFO payload
func DecodeCapacity(info []byte) (PackCapacityRecord, error) {
	r := newFieldReader(info, 0)

	var (
		rec PackCapacityRecord
		err error
	)
	if rec.RemainingCapacity, err = readCapacity(r, "remaining capacity"); err != nil {
		return PackCapacityRecord{}, err
	}
	if rec.FullCapacity, err = readCapacity(r, "full capacity"); err != nil {
		return PackCapacityRecord{}, err
	}
	if rec.DesignCapacity, err = readCapacity(r, "design capacity"); err != nil {
		return PackCapacityRecord{}, err
	}
	if rec.SOC, err = percent(rec.RemainingCapacity, rec.FullCapacity, "full capacity"); err != nil {
		return PackCapacityRecord{}, err
	}
	if rec.SOH, err = percent(rec.FullCapacity, rec.DesignCapacity, "design capacity"); err != nil {
		return PackCapacityRecord{}, err
	}
	return rec, nil
}
