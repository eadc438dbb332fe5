package nmea

import "fmt"

// Sentence types the decoder understands.
const (
	TypeGGA = "GGA"
	TypeRMC = "RMC"
)

// Reasons carried by Ignored.
const (
	ReasonNotSentence = "not a sentence"
	ReasonUnsupported = "unsupported sentence type"
	ReasonNoFix       = "no fix"
	ReasonVoid        = "void"
)

// Sentence is the result of a successful Decode. It is one of GGA, RMC or
// Ignored.
type Sentence interface {
	// Tag is the three letter sentence type, empty for non-sentence noise.
	Tag() string
	sentence()
}

// Header is the part shared by every decoded sentence.
type Header struct {
	Talker     string // e.g. "GP", "GN", or a proprietary prefix like "PQTM"
	Type       string // last three characters of the address field
	Checksum   byte   // as transmitted
	ChecksumOK bool
}

func (h Header) Tag() string { return h.Type }

// GGA: Global Positioning System Fix Data. Only emitted with FixQuality > 0.
type GGA struct {
	Header
	Time            Time
	Latitude        float64 // decimal degrees, negative south
	LatHemisphere   string
	Longitude       float64 // decimal degrees, negative west
	LonHemisphere   string
	FixQuality      int // 0=none, 1=GPS, 2=DGPS, 4=RTK fixed, 5=RTK float, 6=dead reckoning
	Satellites      int
	HDOP            float64
	Altitude        float64
	AltitudeUnit    string
	GeoidSeparation float64
	GeoidUnit       string
	DGPSAge         float64 // seconds
	DGPSStation     string
}

func (GGA) sentence() {}

// RMC: Recommended Minimum Specific GNSS Data. Only emitted with Status "A".
type RMC struct {
	Header
	Time          Time
	Status        string // "A" valid, "V" void
	Latitude      float64
	LatHemisphere string
	Longitude     float64
	LonHemisphere string
	Speed         float64 // knots over ground
	Course        float64 // degrees true
	Date          Date
	Variation     float64 // magnetic variation in degrees, negative west
}

func (RMC) sentence() {}

// Ignored is a line that decoded without error but carries no usable fix:
// noise, an unsupported sentence type, a GGA without fix or a void RMC.
type Ignored struct {
	Header
	Reason string
}

func (Ignored) sentence() {}

// Time is a UTC time of day as carried by hhmmss.sss fields.
type Time struct {
	Valid       bool
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

func (t Time) String() string {
	if !t.Valid {
		return ""
	}
	if t.Millisecond != 0 {
		return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Minute, t.Second, t.Millisecond)
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Date is a ddmmyy date field.
type Date struct {
	Valid bool
	Day   int
	Month int
	Year  int // four digits
}

func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}
