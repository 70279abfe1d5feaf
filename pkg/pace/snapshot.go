// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot encodings
const (
	EncodingCBOR = "cbor"
	EncodingJSON = "json"
)

// Snapshot is a timestamped record as stored by snapshot consumers
type Snapshot struct {
	Kind   string    `json:"kind" cbor:"1,keyasint"`
	Time   time.Time `json:"time" cbor:"2,keyasint"`
	Record Record    `json:"record" cbor:"3,keyasint"`
}

var snapshotEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("pace: cbor enc mode: %v", err))
	}
	return em
}()

// EncodeSnapshot encodes a record with its kind and timestamp.
// encoding is EncodingCBOR (the default when empty) or EncodingJSON.
func EncodeSnapshot(rec Record, at time.Time, encoding string) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil record")
	}
	snap := Snapshot{Kind: rec.Kind(), Time: at.UTC(), Record: rec}

	switch encoding {
	case "", EncodingCBOR:
		data, err := snapshotEncMode.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to encode CBOR snapshot: %w", err)
		}
		return data, nil
	case EncodingJSON:
		data, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON snapshot: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown snapshot encoding %q", encoding)
	}
}

// DecodeSnapshotHeader reads the kind and timestamp of an encoded snapshot
// without decoding the record body
func DecodeSnapshotHeader(data []byte, encoding string) (kind string, at time.Time, err error) {
	var hdr struct {
		Kind string    `json:"kind" cbor:"1,keyasint"`
		Time time.Time `json:"time" cbor:"2,keyasint"`
	}
	switch encoding {
	case "", EncodingCBOR:
		err = cbor.Unmarshal(data, &hdr)
	case EncodingJSON:
		err = json.Unmarshal(data, &hdr)
	default:
		return "", time.Time{}, fmt.Errorf("unknown snapshot encoding %q", encoding)
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return hdr.Kind, hdr.Time, nil
}
