package reminder

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Percent is a percentage with two decimal places, stored as hundredths
// (1234 == 12.34%). It maps to a NUMERIC(5,2) column.
type Percent int64

// RatePercent returns part/whole*100 rounded half-up to two places.
// A zero whole yields 0.00.
func RatePercent(part, whole int) Percent {
	if whole <= 0 || part <= 0 {
		return 0
	}
	// hundredths = part*10000/whole, rounded half-up in integer arithmetic
	num := int64(part) * 10000 * 2
	den := int64(whole) * 2
	return Percent((num + int64(whole)) / den)
}

// PercentFromFloat rounds f half-up to two places.
func PercentFromFloat(f float64) Percent {
	return Percent(math.Floor(f*100 + 0.5))
}

// ParsePercent parses "12", "12.3" or "12.34".
func ParsePercent(s string) (Percent, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("percent %q has more than two decimal places", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percent %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percent %q: %w", s, err)
	}
	p := Percent(w*100 + f)
	if neg {
		p = -p
	}
	return p, nil
}

func (p Percent) Float64() float64 { return float64(p) / 100 }

func (p Percent) String() string {
	sign := ""
	v := int64(p)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Value implements driver.Valuer.
func (p Percent) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns, which lib/pq returns as text.
func (p *Percent) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = 0
		return nil
	case []byte:
		parsed, err := ParsePercent(string(v))
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case string:
		parsed, err := ParsePercent(v)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case float64:
		*p = PercentFromFloat(v)
		return nil
	case int64:
		*p = Percent(v * 100)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Percent", src)
	}
}

// MarshalJSON renders the percentage as a JSON number with two decimals.
func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Percent) UnmarshalJSON(b []byte) error {
	parsed, err := ParsePercent(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
