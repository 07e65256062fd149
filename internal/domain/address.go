package domain

import (
	"fmt"
	"strings"
)

// Address identifies a slot position within labware. Row 1 is "A",
// row 27 is "AA"; columns are 1-based numbers, so {2,3} renders as "B3".
type Address struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// NewAddress creates an address from 1-based row and column indexes.
func NewAddress(row, column int) Address {
	return Address{Row: row, Column: column}
}

// String renders the address in its "A1" form.
func (a Address) String() string {
	if a.Row < 1 || a.Column < 1 {
		return fmt.Sprintf("(row %d, column %d)", a.Row, a.Column)
	}
	var sb strings.Builder
	row := a.Row
	for row > 0 {
		row-- // shift to 0-based so 26 maps to "Z" rather than "A?"
		sb.WriteByte(byte('A' + row%26))
		row /= 26
	}
	// Letters come out least-significant first; reverse them.
	letters := []byte(sb.String())
	for i, j := 0, len(letters)-1; i < j; i, j = i+1, j-1 {
		letters[i], letters[j] = letters[j], letters[i]
	}
	return fmt.Sprintf("%s%d", letters, a.Column)
}

// ParseAddress parses an "A1"-style address. Lower-case letters are
// accepted. Returns an error for anything that is not letters followed
// by a positive integer.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	i := 0
	row := 0
	for i < len(s) {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			break
		}
		row = row*26 + int(c-'A') + 1
		i++
	}
	if i == 0 || i == len(s) {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	col := 0
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return Address{}, fmt.Errorf("invalid address %q", s)
		}
		col = col*10 + int(c-'0')
		if col > 1_000_000 {
			return Address{}, fmt.Errorf("invalid address %q", s)
		}
	}
	if col == 0 {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	return Address{Row: row, Column: col}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
