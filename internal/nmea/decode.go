// Package nmea frames outbound NMEA-0183 command sentences and decodes
// receiver output into typed fix records.
//
// Decoding is pure and holds no state between lines. A line yields exactly
// one of: a GGA or RMC carrying an actionable fix, an Ignored value, or an
// error (ErrMalformed, ErrInvalidField, or ErrChecksum in strict mode).
package nmea

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Frame is a sentence split at its delimiters.
type Frame struct {
	Body     string // between '$' and '*'
	Checksum byte   // transmitted
	Sum      byte   // computed over Body
}

// Valid reports whether the transmitted checksum matches the body.
func (f Frame) Valid() bool { return f.Checksum == f.Sum }

// Unframe splits "$body*HH" into its parts. Trailing CR/LF and surrounding
// whitespace are ignored.
func Unframe(line string) (Frame, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Frame{}, malformed("missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 {
		return Frame{}, malformed("missing checksum delimiter")
	}
	body := line[1:star]
	if strings.ContainsAny(body, "$*") {
		return Frame{}, malformed("embedded delimiter in %q", body)
	}
	ck := line[star+1:]
	if len(ck) != 2 {
		return Frame{}, malformed("checksum %q is not two hex digits", ck)
	}
	v, err := strconv.ParseUint(ck, 16, 8)
	if err != nil {
		return Frame{}, malformed("checksum %q is not two hex digits", ck)
	}
	return Frame{Body: body, Checksum: byte(v), Sum: Checksum(body)}, nil
}

// Sanitize turns raw transport bytes into a decodable line. NUL and
// non-ASCII bytes are dropped and surrounding whitespace is trimmed.
func Sanitize(raw []byte) string {
	b := make([]byte, 0, len(raw))
	for _, c := range raw {
		if c == 0 || c >= utf8.RuneSelf {
			continue
		}
		b = append(b, c)
	}
	return strings.TrimSpace(string(b))
}

// Decoder decodes single lines. The zero value is permissive: checksum
// mismatches are recorded in Header.ChecksumOK but do not fail the line.
type Decoder struct {
	// Strict rejects sentences whose checksum does not match with a
	// *ChecksumError.
	Strict bool
}

// Decode decodes line with the permissive default decoder.
func Decode(line string) (Sentence, error) {
	return Decoder{}.Decode(line)
}

// Decode decodes one line. Lines not starting with '$' are Ignored, not
// errors.
func (d Decoder) Decode(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Ignored{Reason: ReasonNotSentence}, nil
	}
	fr, err := Unframe(line)
	if err != nil {
		return nil, err
	}
	if d.Strict && !fr.Valid() {
		return nil, &ChecksumError{Want: fr.Checksum, Got: fr.Sum}
	}

	fields := strings.Split(fr.Body, ",")
	addr := strings.TrimSpace(fields[0])
	if len(addr) < 3 {
		return nil, malformed("short address field %q", addr)
	}
	h := Header{
		Talker:     addr[:len(addr)-3],
		Type:       strings.ToUpper(addr[len(addr)-3:]),
		Checksum:   fr.Checksum,
		ChecksumOK: fr.Valid(),
	}

	switch h.Type {
	case TypeGGA:
		return decodeGGA(h, fields)
	case TypeRMC:
		return decodeRMC(h, fields)
	default:
		return Ignored{Header: h, Reason: ReasonUnsupported}, nil
	}
}

// GGA fields:
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//	6: fix quality (0=invalid)
//	7: satellites in use
//	8: HDOP
//	9: altitude
//	10: altitude unit (M)
//	11: geoid separation
//	12: geoid unit (M)
//	13: age of DGPS data (s)
//	14: DGPS station id
func decodeGGA(h Header, f []string) (Sentence, error) {
	p := &fieldParser{typ: TypeGGA, fields: f}
	s := GGA{Header: h}
	s.Time = p.time(1, "time")
	s.Latitude, s.LatHemisphere = p.coord(2, "latitude", "NS", 90)
	s.Longitude, s.LonHemisphere = p.coord(4, "longitude", "EW", 180)
	s.FixQuality = p.int(6, "fix_quality")
	s.Satellites = p.int(7, "satellites")
	s.HDOP = p.float(8, "hdop")
	s.Altitude = p.float(9, "altitude")
	s.AltitudeUnit = p.str(10)
	s.GeoidSeparation = p.float(11, "geoid_separation")
	s.GeoidUnit = p.str(12)
	s.DGPSAge = p.float(13, "dgps_age")
	s.DGPSStation = p.str(14)
	if p.err != nil {
		return nil, p.err
	}
	if s.FixQuality <= 0 {
		return Ignored{Header: h, Reason: ReasonNoFix}, nil
	}
	return s, nil
}

// RMC fields:
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg true)
//	9: date (ddmmyy)
//	10: magnetic variation (deg)
//	11: E/W
func decodeRMC(h Header, f []string) (Sentence, error) {
	p := &fieldParser{typ: TypeRMC, fields: f}
	s := RMC{Header: h}
	s.Time = p.time(1, "time")
	s.Status = p.letter(2, "status", "AV")
	s.Latitude, s.LatHemisphere = p.coord(3, "latitude", "NS", 90)
	s.Longitude, s.LonHemisphere = p.coord(5, "longitude", "EW", 180)
	s.Speed = p.float(7, "speed")
	s.Course = p.float(8, "course")
	s.Date = p.date(9, "date")
	s.Variation = p.float(10, "variation")
	if p.letter(11, "variation_dir", "EW") == "W" {
		s.Variation = -s.Variation
	}
	if p.err != nil {
		return nil, p.err
	}
	if s.Status != "A" {
		return Ignored{Header: h, Reason: ReasonVoid}, nil
	}
	return s, nil
}
