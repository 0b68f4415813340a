package sensortag

import "strconv"

// FormatFixed renders v in fixed-point notation with exactly digits decimals.
// Rounding is exact on the binary value of v with ties to even, so 0.125
// renders as "0.12" while 1.005 (stored as 1.00499...) renders as "1.00".
// NaN and infinities are not valid readings and render as strconv does.
func FormatFixed(v float64, digits int) string {
	return strconv.FormatFloat(v, 'f', digits, 64)
}
