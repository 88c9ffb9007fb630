// Package country resolves phone numbers to countries by their dialing prefix.
package country

import "strings"

// Country is a resolved dialing-prefix entry.
type Country struct {
	Code string // ISO 3166-1 alpha-2
	Name string
}

// Resolve maps an international phone number to a country using the longest
// matching calling-code prefix. The number must start with '+' followed by
// digits only; anything else misses. A miss is a soft failure: callers keep
// the account and leave the country fields empty.
func Resolve(phone string) (Country, bool) {
	digits, ok := normalize(phone)
	if !ok {
		return Country{}, false
	}

	max := 4
	if len(digits) < max {
		max = len(digits)
	}
	for l := max; l >= 1; l-- {
		prefix := digits[:l]
		c, found := callingCodes[prefix]
		if !found {
			continue
		}
		if prefix == "1" {
			return resolveNANP(digits), true
		}
		return c, true
	}
	return Country{}, false
}

// ValidFormat reports whether the number looks like a plausible international
// phone number: a leading '+', then 7 to 15 digits.
func ValidFormat(phone string) bool {
	digits, ok := normalize(phone)
	if !ok {
		return false
	}
	return len(digits) >= 7 && len(digits) <= 15
}

// FlagEmoji returns the flag emoji for an ISO alpha-2 code, or a globe when
// the code is empty or malformed.
func FlagEmoji(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return "🌍"
	}
	const base = 0x1F1E6
	return string(rune(base+int(code[0]-'A'))) + string(rune(base+int(code[1]-'A')))
}

func normalize(phone string) (string, bool) {
	s := strings.TrimSpace(phone)
	if len(s) < 2 || s[0] != '+' {
		return "", false
	}
	digits := s[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", false
		}
	}
	return digits, true
}

// resolveNANP splits the shared +1 block between Canada and the United States
// by area code. More specific NANP prefixes (Caribbean territories) are
// matched before this fallback by the longest-prefix loop.
func resolveNANP(digits string) Country {
	if len(digits) >= 4 {
		if _, ok := canadianAreaCodes[digits[1:4]]; ok {
			return Country{Code: "CA", Name: "Canada"}
		}
	}
	return Country{Code: "US", Name: "United States"}
}
