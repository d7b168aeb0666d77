package backup

import (
	"fmt"

	"codeberg.org/mutker/healthd/internal/errors"
)

// Validator rejects values that must not be trusted as a counter.
type Validator func(Value) error

// NonNegative accepts values whose bins are all >= 0 and not all zero.
// A fuel gauge that was just reset reports all zeros, which is treated as
// missing history rather than a real reading.
func NonNegative(v Value) error {
	for i, b := range v {
		if b < 0 {
			return errors.New().WithData(errors.ErrInvalidCounter, fmt.Sprintf("bin %d is negative: %d", i, b))
		}
	}
	if v.IsZero() {
		return errors.New().WithData(errors.ErrInvalidCounter, "all bins are zero")
	}

	return nil
}

// InRange accepts single-bin values within [lo, hi].
func InRange(lo, hi int64) Validator {
	return func(v Value) error {
		if len(v) != 1 {
			return errors.New().WithData(errors.ErrInvalidCounter, fmt.Sprintf("want 1 bin, got %d", len(v)))
		}
		if v[0] < lo || v[0] > hi {
			return errors.New().WithData(errors.ErrInvalidCounter, fmt.Sprintf("%d outside [%d, %d]", v[0], lo, hi))
		}
		return nil
	}
}
