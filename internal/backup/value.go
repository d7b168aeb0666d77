package backup

import (
	"strconv"
	"strings"

	"codeberg.org/mutker/healthd/internal/errors"
)

// Value is a fixed-length vector of counter bins. Scalar counters use a
// single bin.
type Value []int64

// Equal reports whether v and o hold the same bins.
func (v Value) Equal(o Value) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}

	return true
}

// RegressesFrom reports whether any bin of v is lower than the same bin of prev.
func (v Value) RegressesFrom(prev Value) bool {
	if len(v) != len(prev) {
		return false
	}
	for i := range v {
		if v[i] < prev[i] {
			return true
		}
	}

	return false
}

// Max returns the per-bin maximum of v and o, which must have equal length.
func (v Value) Max(o Value) Value {
	out := make(Value, len(v))
	for i := range v {
		out[i] = max(v[i], o[i])
	}

	return out
}

// IsZero reports whether every bin is zero.
func (v Value) IsZero() bool {
	for _, b := range v {
		if b != 0 {
			return false
		}
	}

	return true
}

// Clone returns a copy of v.
func (v Value) Clone() Value {
	return append(Value(nil), v...)
}

// String encodes v in the sysfs bins format: space separated decimals.
func (v Value) String() string {
	parts := make([]string, len(v))
	for i, b := range v {
		parts[i] = strconv.FormatInt(b, 10)
	}

	return strings.Join(parts, " ")
}

// Encode returns the persisted representation of v.
func (v Value) Encode() []byte {
	return []byte(v.String())
}

// Decode parses a persisted value.
func Decode(data []byte) (Value, error) {
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return nil, errors.New().WithData(errors.ErrPersistenceCorrupt, "empty value")
	}

	v := make(Value, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, errors.New().Wrap(errors.ErrPersistenceCorrupt, err)
		}
		v[i] = n
	}

	return v, nil
}
