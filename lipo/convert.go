package lipo

import (
	"fmt"
	"math"
)

// RawToMillivolts converts a raw ADC code to mV for an ADC whose full scale
// code equals vref.
func RawToMillivolts(code, vref, fullScale uint32) uint32 {
	if fullScale == 0 {
		return 0
	}
	return uint32(uint64(vref) * uint64(code) / uint64(fullScale))
}

// ReferenceMillivolts derives the ADC's full scale voltage from a reading of
// a reference of known voltage. The result tracks drift of the supply the
// ADC uses as its reference.
func ReferenceMillivolts(nominal, fullScale, raw uint32) (uint32, error) {
	if raw == 0 {
		return 0, ErrNoReference
	}
	vref := uint64(nominal) * uint64(fullScale) / uint64(raw)
	if vref > math.MaxUint32 {
		return 0, fmt.Errorf("reference voltage out of range: %d mV", vref)
	}
	return uint32(vref), nil
}

// ScaleFromDivider returns the cell scale for a divider with r1 from the cell
// tap to the ADC pin and r2 from the ADC pin to ground.
func ScaleFromDivider(r1, r2 float64, bits uint) (uint32, error) {
	if r1 < 0 || r2 <= 0 {
		return 0, fmt.Errorf("invalid divider resistors r1: %v, r2: %v", r1, r2)
	}
	scale := math.Round((r1 + r2) * float64(uint32(1)<<bits) / r2)
	if scale > math.MaxUint32 {
		return 0, fmt.Errorf("divider scale out of range: %v", scale)
	}
	return uint32(scale), nil
}
