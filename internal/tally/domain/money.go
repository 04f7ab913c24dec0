package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Money is an amount in minor units (cents). Amounts never pass through
// floating point.
type Money int64

const minorPerMajor = 100

var ErrInvalidMoney = errors.New("invalid money amount")

// Cents returns n minor units.
func Cents(n int64) Money { return Money(n) }

// Units returns n major units.
func Units(n int64) Money { return Money(n * minorPerMajor) }

// ParseMoney parses a decimal string such as "12", "12.3", "-0.05".
// More than two fractional digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidMoney
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, ErrInvalidMoney
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidMoney, s)
	}
	if hasFrac && frac == "" {
		return 0, ErrInvalidMoney
	}

	var units int64
	if whole != "" {
		n, err := strconv.ParseUint(whole, 10, 63)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidMoney, err)
		}
		units = int64(n)
	}

	var cents int64
	if frac != "" {
		for len(frac) < 2 {
			frac += "0"
		}
		n, err := strconv.ParseUint(frac, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidMoney, err)
		}
		cents = int64(n)
	}

	total := units*minorPerMajor + cents
	if total/minorPerMajor != units {
		return 0, fmt.Errorf("%w: overflow", ErrInvalidMoney)
	}
	if neg {
		total = -total
	}
	return Money(total), nil
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String formats the amount with exactly two decimal places.
func (m Money) String() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/minorPerMajor, v%minorPerMajor)
}

func (m Money) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Money) UnmarshalText(b []byte) error {
	v, err := ParseMoney(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m < 0 }

// ForDuration returns the hourly rate m charged for d, rounded half away from
// zero to the nearest minor unit. Whole seconds are used.
func (m Money) ForDuration(d time.Duration) Money {
	secs := int64(d / time.Second)
	num := int64(m) * secs
	q, r := num/3600, num%3600
	if r*2 >= 3600 {
		q++
	} else if r*2 <= -3600 {
		q--
	}
	return Money(q)
}

// Sum adds amounts.
func Sum(ms ...Money) Money {
	var total Money
	for _, m := range ms {
		total += m
	}
	return total
}
