// Package str formats small integers as decimal strings without going
// through fmt, for use in error message prefixes on hot paths (struct
// and list element indices).
package str

import "strconv"

// Itod formats a signed integer as decimal.
func Itod(i int) string {
	return strconv.Itoa(i)
}

// Utod formats an unsigned integer as decimal.
func Utod[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](u T) string {
	return strconv.FormatUint(uint64(u), 10)
}
