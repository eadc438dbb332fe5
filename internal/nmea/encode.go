package nmea

import (
	"fmt"
	"strings"
)

// Checksum returns the XOR of every byte in s.
func Checksum(s string) byte {
	var sum byte
	for i := 0; i < len(s); i++ {
		sum ^= s[i]
	}
	return sum
}

// Encode frames a command body as a wire sentence: $<body>*<HH>\r\n.
//
// A single leading '$' is tolerated and stripped before the checksum is
// computed. An empty body yields "$*00\r\n".
func Encode(body string) string {
	body = strings.TrimPrefix(strings.TrimSpace(body), "$")
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}
