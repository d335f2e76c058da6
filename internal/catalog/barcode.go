package catalog

import "strings"

// ValidEAN13 reports whether s is a valid EAN-13 barcode: exactly 13
// numeric digits whose 13th digit equals the weighted checksum of the
// first 12 (alternating weights 1 and 3).
func ValidEAN13(s string) bool {
	if len(s) != 13 {
		return false
	}
	sum := 0
	for i := 0; i < 13; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		if i == 12 {
			return (10-sum%10)%10 == int(c-'0')
		}
		if i%2 == 1 {
			sum += 3 * int(c-'0')
		} else {
			sum += int(c - '0')
		}
	}
	return false
}

// BarcodeFromSKU extracts the barcode from raw sku text. The candidate is
// the last whitespace-delimited token; if it is a valid EAN-13 the result
// is "EAN-13 <code>", otherwise nil. Malformed input never errors.
func BarcodeFromSKU(raw string) *string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	code := fields[len(fields)-1]
	if !ValidEAN13(code) {
		return nil
	}
	formatted := "EAN-13 " + code
	return &formatted
}
