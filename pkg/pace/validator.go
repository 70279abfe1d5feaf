// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pace

import "fmt"

// AnomalyType represents different types of decoded value anomalies
type AnomalyType int

const (
	AnomalyCellVoltage AnomalyType = iota
	AnomalyTemperature
	AnomalyPercentage
	AnomalyCellCount
)

// String returns a short name for the anomaly type
func (a AnomalyType) String() string {
	switch a {
	case AnomalyCellVoltage:
		return "cell_voltage"
	case AnomalyTemperature:
		return "temperature"
	case AnomalyPercentage:
		return "percentage"
	case AnomalyCellCount:
		return "cell_count"
	default:
		return fmt.Sprintf("AnomalyType(%d)", int(a))
	}
}

// Plausibility limits for decoded analog values
const (
	MinCellMillivolts = 1000
	MaxCellMillivolts = 5000
	MinTemperatureC   = -40.0
	MaxTemperatureC   = 120.0
	MaxPercent        = 100.0
)

// ValidationError represents an implausible decoded value.
// Validation never rejects a record; callers report these as warnings.
type ValidationError struct {
	Type    AnomalyType
	Pack    int
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateAnalog checks decoded analog data for implausible values
// Returns a slice of validation errors (empty if every value is plausible)
func ValidateAnalog(a AnalogData) []ValidationError {
	errors := []ValidationError{}

	for i, p := range a.Packs {
		errors = append(errors, validatePack(p)...)

		if i > 0 && len(p.CellVoltages) != len(a.Packs[0].CellVoltages) {
			errors = append(errors, ValidationError{
				Type:    AnomalyCellCount,
				Pack:    p.Pack,
				Message: fmt.Sprintf("Pack %d has %d cells, pack 1 has %d", p.Pack, len(p.CellVoltages), len(a.Packs[0].CellVoltages)),
				Details: map[string]interface{}{"cells": len(p.CellVoltages), "expected": len(a.Packs[0].CellVoltages)},
			})
		}
	}

	return errors
}

// validatePack validates a single pack record
func validatePack(p PackAnalogRecord) []ValidationError {
	errors := []ValidationError{}

	for i, mv := range p.CellVoltages {
		if mv < MinCellMillivolts || mv > MaxCellMillivolts {
			errors = append(errors, ValidationError{
				Type:    AnomalyCellVoltage,
				Pack:    p.Pack,
				Message: fmt.Sprintf("Pack %d cell %d voltage=%d mV (valid %d-%d)", p.Pack, i+1, mv, MinCellMillivolts, MaxCellMillivolts),
				Details: map[string]interface{}{"cell": i + 1, "mv": mv},
			})
		}
	}

	for i, t := range p.Temperatures {
		if t < MinTemperatureC || t > MaxTemperatureC {
			errors = append(errors, ValidationError{
				Type:    AnomalyTemperature,
				Pack:    p.Pack,
				Message: fmt.Sprintf("Pack %d temp %d=%.1f °C (valid %.0f to %.0f)", p.Pack, i+1, t, MinTemperatureC, MaxTemperatureC),
				Details: map[string]interface{}{"sensor": i + 1, "celsius": t},
			})
		}
	}

	if p.SOC > MaxPercent {
		errors = append(errors, ValidationError{
			Type:    AnomalyPercentage,
			Pack:    p.Pack,
			Message: fmt.Sprintf("Pack %d SOC=%.2f%% exceeds 100%%", p.Pack, p.SOC),
			Details: map[string]interface{}{"soc": p.SOC},
		})
	}
	if p.SOH > MaxPercent {
		errors = append(errors, ValidationError{
			Type:    AnomalyPercentage,
			Pack:    p.Pack,
			Message: fmt.Sprintf("Pack %d SOH=%.2f%% exceeds 100%%", p.Pack, p.SOH),
			Details: map[string]interface{}{"soh": p.SOH},
		})
	}

	return errors
}
