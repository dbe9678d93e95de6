package pairing

import "strings"

// FormatPairingCode groups a code in 4 character segments: "ABCD1234" -> "ABCD-1234".
// Existing separators are dropped first.
func FormatPairingCode(code string) string {
	code = strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(code))
	if len(code) <= 4 {
		return code
	}

	var b strings.Builder
	for i := 0; i < len(code); i += 4 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + 4
		if end > len(code) {
			end = len(code)
		}
		b.WriteString(code[i:end])
	}
	return b.String()
}
