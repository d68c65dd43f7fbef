package foreign

import "golang.org/x/exp/constraints"

func Align[I constraints.Integer](a, b I) I {
	return (a + b - 1) &^ (b - 1)
}

// Fits32 reports whether addr can be burned into a 32-bit immediate.
func Fits32(addr uint64) bool {
	return addr <= 0xFFFFFFFF
}
