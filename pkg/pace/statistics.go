// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import (
	"fmt"
	"time"
)

// Statistics tracks request outcomes and error rates
type Statistics struct {
	StartTime      time.Time `json:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time"`

	// Counters
	TotalRequests   uint64 `json:"total_requests"`
	ValidResponses  uint64 `json:"valid_responses"`
	FramingErrors   uint64 `json:"framing_errors"`
	ChecksumErrors  uint64 `json:"checksum_errors"`
	ProtocolErrors  uint64 `json:"protocol_errors"`
	DecodeErrors    uint64 `json:"decode_errors"`
	TransportErrors uint64 `json:"transport_errors"`
	AnomalousValues uint64 `json:"anomalous_values"`

	// Rates (calculated)
	RequestRate float64 `json:"request_rate"` // requests/sec
	ErrorRate   float64 `json:"error_rate"`   // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one request. Errors that carry a pace
// ErrorKind are counted by kind; any other error is counted as a transport
// failure.
func (s *Statistics) Update(err error, anomalies int) {
	s.TotalRequests++
	s.LastUpdateTime = time.Now()

	if err == nil {
		s.ValidResponses++
		s.AnomalousValues += uint64(anomalies)
		return
	}

	kind, ok := KindOf(err)
	if !ok {
		s.TransportErrors++
		return
	}
	switch kind {
	case KindFraming:
		s.FramingErrors++
	case KindChecksum:
		s.ChecksumErrors++
	case KindProtocol:
		s.ProtocolErrors++
	case KindDecode:
		s.DecodeErrors++
	}
}

// Errors returns the total number of failed requests
func (s *Statistics) Errors() uint64 {
	return s.FramingErrors + s.ChecksumErrors + s.ProtocolErrors + s.DecodeErrors + s.TransportErrors
}

// CalculateRates calculates request and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.RequestRate = float64(s.TotalRequests) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// Snapshot returns a copy with rates calculated
func (s *Statistics) Snapshot() Statistics {
	s.CalculateRates()
	return *s
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	pct := func(n uint64) float64 {
		if s.TotalRequests == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalRequests)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Requests:  %8d\n", s.TotalRequests)
	result += fmt.Sprintf("Valid Responses: %8d (%.1f%%)\n", s.ValidResponses, pct(s.ValidResponses))

	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", s.FramingErrors, pct(s.FramingErrors))
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, pct(s.ChecksumErrors))
	}
	if s.ProtocolErrors > 0 {
		result += fmt.Sprintf("Protocol Errors: %8d (%.1f%%)\n", s.ProtocolErrors, pct(s.ProtocolErrors))
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, pct(s.DecodeErrors))
	}
	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors:%8d (%.1f%%)\n", s.TransportErrors, pct(s.TransportErrors))
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d\n", s.AnomalousValues)
	}

	result += fmt.Sprintf("Request Rate:    %8.2f req/sec\n", s.RequestRate)
	result += fmt.Sprintf("Error Rate:      %8.2f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
