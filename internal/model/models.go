package model

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
)

// MaxCopies is the placement ceiling for an object: either unlimited or a
// positive number of copies. The zero value is Unlimited.
type MaxCopies struct {
	limit   int
	limited bool
}

// UnlimitedLiteral is the sidecar and path-config spelling of "no ceiling".
const UnlimitedLiteral = "inf"

// Unlimited places no ceiling on the number of copies.
func Unlimited() MaxCopies { return MaxCopies{} }

// Limited caps the number of copies at n. n must be positive.
func Limited(n int) MaxCopies {
	if n <= 0 {
		panic(fmt.Sprintf("model: maxcopies must be positive, got %d", n))
	}
	return MaxCopies{limit: n, limited: true}
}

// Limit returns the ceiling and whether there is one.
func (m MaxCopies) Limit() (int, bool) { return m.limit, m.limited }

// IsUnlimited reports whether there is no ceiling.
func (m MaxCopies) IsUnlimited() bool { return !m.limited }

// Reached reports whether copies has reached the ceiling (the object is saturated).
func (m MaxCopies) Reached(copies int) bool { return m.limited && copies >= m.limit }

// Exceeded reports whether copies is above the ceiling.
func (m MaxCopies) Exceeded(copies int) bool { return m.limited && copies > m.limit }

func (m MaxCopies) String() string {
	if !m.limited {
		return UnlimitedLiteral
	}
	return strconv.Itoa(m.limit)
}

// ParseMaxCopies accepts a positive integer or "inf".
func ParseMaxCopies(s string) (MaxCopies, error) {
	if s == UnlimitedLiteral {
		return Unlimited(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return MaxCopies{}, fmt.Errorf("maxcopies must be a positive integer or %q, got %q", UnlimitedLiteral, s)
	}
	return Limited(n), nil
}

// NullInt64 maps the variant onto a nullable column: NULL means unlimited.
func (m MaxCopies) NullInt64() sql.NullInt64 {
	if !m.limited {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(m.limit), Valid: true}
}

// MaxCopiesFromNull is the inverse of NullInt64. Non-positive stored values
// are treated as unlimited.
func MaxCopiesFromNull(v sql.NullInt64) MaxCopies {
	if !v.Valid || v.Int64 <= 0 {
		return Unlimited()
	}
	return Limited(int(v.Int64))
}

// MarshalJSON writes a number, or "inf" for unlimited.
func (m MaxCopies) MarshalJSON() ([]byte, error) {
	if !m.limited {
		return json.Marshal(UnlimitedLiteral)
	}
	return json.Marshal(m.limit)
}

// UnmarshalJSON accepts a positive number or the string "inf".
func (m *MaxCopies) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != UnlimitedLiteral {
			return fmt.Errorf("maxcopies: unexpected string %q", s)
		}
		*m = Unlimited()
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("maxcopies: expected number or %q", UnlimitedLiteral)
	}
	if n != float64(int(n)) || n < 1 {
		return fmt.Errorf("maxcopies: expected positive integer, got %v", n)
	}
	*m = Limited(int(n))
	return nil
}

// FileMeta holds per-file overrides read from a sidecar file.
// Nil fields were absent or rejected.
type FileMeta struct {
	Hash      string     `json:"hash,omitempty"`      // lowercase hex SHA-256, trusted without rehashing
	Priority  *int       `json:"priority,omitempty"`  // non-negative
	MaxCopies *MaxCopies `json:"maxcopies,omitempty"` // Unlimited or Limited(n)
}

// Empty reports whether the sidecar supplied nothing usable.
func (m FileMeta) Empty() bool {
	return m.Hash == "" && m.Priority == nil && m.MaxCopies == nil
}
