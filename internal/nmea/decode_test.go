package nmea

import (
	"fmt"
	"testing"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ggaLine = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	rmcLine = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
)

// nmeaLine frames payload with a correct checksum.
func nmeaLine(payload string) string {
	return fmt.Sprintf("$%s*%02X", payload, Checksum(payload))
}

func TestDecodeGGA(t *testing.T) {
	s, err := Decode(ggaLine)
	require.NoError(t, err)
	gga, ok := s.(GGA)
	require.True(t, ok, "expected GGA, got %T", s)

	assert.Equal(t, "GGA", gga.Tag())
	assert.Equal(t, "GP", gga.Talker)
	assert.True(t, gga.ChecksumOK)
	assert.Equal(t, 1, gga.FixQuality)
	assert.Equal(t, "12:35:19", gga.Time.String())
	assert.InDelta(t, 48.1173, gga.Latitude, 1e-4)
	assert.Equal(t, "N", gga.LatHemisphere)
	assert.InDelta(t, 11.5167, gga.Longitude, 1e-4)
	assert.Equal(t, "E", gga.LonHemisphere)
	assert.Equal(t, 8, gga.Satellites)
	assert.InDelta(t, 0.9, gga.HDOP, 1e-9)
	assert.InDelta(t, 545.4, gga.Altitude, 1e-9)
	assert.Equal(t, "M", gga.AltitudeUnit)
	assert.InDelta(t, 46.9, gga.GeoidSeparation, 1e-9)
}

func TestDecodeRMC(t *testing.T) {
	s, err := Decode(rmcLine)
	require.NoError(t, err)
	rmc, ok := s.(RMC)
	require.True(t, ok, "expected RMC, got %T", s)

	assert.Equal(t, "RMC", rmc.Tag())
	assert.Equal(t, "A", rmc.Status)
	assert.Equal(t, "12:35:19", rmc.Time.String())
	assert.InDelta(t, 48.1173, rmc.Latitude, 1e-4)
	assert.InDelta(t, 11.5167, rmc.Longitude, 1e-4)
	assert.InDelta(t, 22.4, rmc.Speed, 1e-9)
	assert.InDelta(t, 84.4, rmc.Course, 1e-9)
	assert.Equal(t, "1994-03-23", rmc.Date.String())
	assert.InDelta(t, -3.1, rmc.Variation, 1e-9)
}

func TestDecodeMatchesGoNMEA(t *testing.T) {
	lines := []string{
		ggaLine,
		rmcLine,
		nmeaLine("GNGGA,001043.00,4404.14036,N,12118.85961,W,2,12,0.98,1113.0,M,-21.3,M,,"),
		nmeaLine("GNRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W"),
		nmeaLine("GPGGA,092750.000,5321.6802,S,00630.3372,W,1,8,1.03,61.7,M,55.2,M,,"),
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			ours, err := Decode(line)
			require.NoError(t, err)
			ref, err := gonmea.Parse(line)
			require.NoError(t, err)

			switch want := ref.(type) {
			case gonmea.GGA:
				got, ok := ours.(GGA)
				require.True(t, ok, "expected GGA, got %T", ours)
				assert.InDelta(t, want.Latitude, got.Latitude, 1e-7)
				assert.InDelta(t, want.Longitude, got.Longitude, 1e-7)
				assert.InDelta(t, want.Altitude, got.Altitude, 1e-7)
				assert.Equal(t, want.FixQuality, fmt.Sprint(got.FixQuality))
				assert.Equal(t, want.Time.Hour, got.Time.Hour)
				assert.Equal(t, want.Time.Second, got.Time.Second)
			case gonmea.RMC:
				got, ok := ours.(RMC)
				require.True(t, ok, "expected RMC, got %T", ours)
				assert.InDelta(t, want.Latitude, got.Latitude, 1e-7)
				assert.InDelta(t, want.Longitude, got.Longitude, 1e-7)
				assert.InDelta(t, want.Speed, got.Speed, 1e-7)
				assert.InDelta(t, want.Course, got.Course, 1e-7)
				assert.Equal(t, want.Validity, got.Status)
			default:
				t.Fatalf("unexpected reference type %T", ref)
			}
		})
	}
}

func TestDecodeTalkerSuffix(t *testing.T) {
	for _, talker := range []string{"GP", "GN", "GL", "GA", "GB", "BD"} {
		t.Run(talker, func(t *testing.T) {
			s, err := Decode(nmeaLine(talker + "GGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
			require.NoError(t, err)
			gga, ok := s.(GGA)
			require.True(t, ok, "expected GGA, got %T", s)
			assert.Equal(t, talker, gga.Talker)
		})
	}
}

func TestDecodeIgnored(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason string
	}{
		{"no dollar", "GPGGA,123519,4807.038,N", ReasonNotSentence},
		{"binary noise", "\xb5b\x01\x07", ReasonNotSentence},
		{"empty", "", ReasonNotSentence},
		{"gga no fix", nmeaLine("GPGGA,,,,,,0,00,99.99,,,,,,"), ReasonNoFix},
		{"gga no fix with position", nmeaLine("GNGGA,123519,4807.038,N,01131.000,E,0,08,0.9,545.4,M,46.9,M,,"), ReasonNoFix},
		{"gga empty quality", nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,,08,0.9,545.4,M,46.9,M,,"), ReasonNoFix},
		{"rmc void", nmeaLine("GPRMC,,V,,,,,,,,,,N"), ReasonVoid},
		{"rmc void with position", nmeaLine("GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"), ReasonVoid},
		{"unsupported", nmeaLine("GNGSA,A,3,01,02,,,,,,,,,,,1.5,0.9,1.2"), ReasonUnsupported},
		{"proprietary ack", nmeaLine("PQTMCFGMSG,OK"), ReasonUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(tt.line)
			require.NoError(t, err)
			ign, ok := s.(Ignored)
			require.True(t, ok, "expected Ignored, got %T", s)
			assert.Equal(t, tt.reason, ign.Reason)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	lines := []string{
		"$GPGGA,123519,4807.038,N",
		"$GPGGA,123519*4",
		"$GPGGA,123519*ZZ",
		"$GPGGA,123519*123",
		"$GP*00",
		"$*00",
		"$GPGGA,12$GPRMC,123519*00",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			s, err := Decode(line)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.NotErrorIs(t, err, ErrInvalidField)
		})
	}
}

func TestDecodeInvalidField(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		field string
	}{
		{"bad time", "$GPGGA,bad,data*00", "time"},
		{"bad latitude", nmeaLine("GPGGA,123519,48x7.038,N,01131.000,E,1,08,0.9,545.4,M,,,,"), "latitude"},
		{"latitude out of range", nmeaLine("GPGGA,123519,9107.038,N,01131.000,E,1,08,0.9,545.4,M,,,,"), "latitude"},
		{"minutes out of range", nmeaLine("GPGGA,123519,4867.038,N,01131.000,E,1,08,0.9,545.4,M,,,,"), "latitude"},
		{"bad hemisphere", nmeaLine("GPGGA,123519,4807.038,E,01131.000,E,1,08,0.9,545.4,M,,,,"), "latitude_dir"},
		{"bad quality", nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,x,08,0.9,545.4,M,,,,"), "fix_quality"},
		{"bad altitude", nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,high,M,,,,"), "altitude"},
		{"bad status", nmeaLine("GPRMC,123519,X,4807.038,N,01131.000,E,022.4,084.4,230394,,"), "status"},
		{"bad speed", nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,fast,084.4,230394,,"), "speed"},
		{"bad course", nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,east,230394,,"), "course"},
		{"bad date", nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,321394,,"), "date"},
		{"hour out of range", nmeaLine("GPRMC,253519,A,4807.038,N,01131.000,E,022.4,084.4,230394,,"), "time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(tt.line)
			assert.Nil(t, s)
			require.ErrorIs(t, err, ErrInvalidField)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestDecodeInvalidFieldDoesNotAffectNextLine(t *testing.T) {
	_, err := Decode("$GPGGA,bad,data*00")
	require.ErrorIs(t, err, ErrInvalidField)

	s, err := Decode(ggaLine)
	require.NoError(t, err)
	assert.IsType(t, GGA{}, s)
}

func TestDecodeChecksumMismatch(t *testing.T) {
	bad := ggaLine[:len(ggaLine)-2] + "00"

	s, err := Decode(bad)
	require.NoError(t, err)
	gga, ok := s.(GGA)
	require.True(t, ok, "expected GGA, got %T", s)
	assert.False(t, gga.ChecksumOK)
	assert.Equal(t, byte(0), gga.Checksum)

	_, err = Decoder{Strict: true}.Decode(bad)
	require.ErrorIs(t, err, ErrChecksum)
	var ce *ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, byte(0x00), ce.Want)
	assert.Equal(t, byte(0x47), ce.Got)

	_, err = Decoder{Strict: true}.Decode(ggaLine)
	assert.NoError(t, err)
}

func TestDecodeToleratesWhitespaceAndLowercaseChecksum(t *testing.T) {
	s, err := Decode("  " + rmcLine[:len(rmcLine)-2] + "6a\r\n")
	require.NoError(t, err)
	rmc, ok := s.(RMC)
	require.True(t, ok, "expected RMC, got %T", s)
	assert.True(t, rmc.ChecksumOK)
}

func TestDecodeFractionalTime(t *testing.T) {
	s, err := Decode(nmeaLine("GNRMC,083559.50,A,4717.11437,N,00833.91522,E,0.004,77.52,091202,,,A"))
	require.NoError(t, err)
	rmc := s.(RMC)
	assert.Equal(t, "08:35:59.500", rmc.Time.String())
	assert.Equal(t, "2002-12-09", rmc.Date.String())
}

func TestCoordinateConversion(t *testing.T) {
	tests := []struct {
		raw, hemi string
		want      float64
	}{
		{"4807.038", "N", 48.1173},
		{"4807.038", "S", -48.1173},
		{"01131.000", "E", 11.516667},
		{"01131.000", "W", -11.516667},
		{"0000.000", "N", 0},
		{"", "N", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw+tt.hemi, func(t *testing.T) {
			hemis := "NS"
			if tt.hemi == "E" || tt.hemi == "W" {
				hemis = "EW"
			}
			p := &fieldParser{typ: "TEST", fields: []string{tt.raw, tt.hemi}}
			got, hemi := p.coord(0, "coord", hemis, 180)
			require.NoError(t, p.err)
			assert.InDelta(t, tt.want, got, 1e-4)
			assert.Equal(t, tt.hemi, hemi)
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, ggaLine, Sanitize([]byte("\x00\xff"+ggaLine+"\r\n")))
	assert.Equal(t, "$GP", Sanitize([]byte("$G\xc3\xa9P")))
	assert.Equal(t, "", Sanitize(nil))
}
