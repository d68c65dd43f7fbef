package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Address is a foreign address written as a hex string, "0x8F8E10".
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%08X", uint64(a))
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("address must be a hex string: %w", err)
	}
	v, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAddress accepts hex with or without a 0x prefix.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing address '%s': %w", s, err)
	}
	return Address(v), nil
}

func addresses(in []uint64) []Address {
	out := make([]Address, len(in))
	for i, v := range in {
		out[i] = Address(v)
	}
	return out
}

func raw(in []Address) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}
	return out
}
