package nmea

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// fieldParser reads positional fields of one sentence. Indexes past the end
// read as empty. The first conversion failure is kept in err and later calls
// become no-ops, so decoders can read every field and check once.
type fieldParser struct {
	typ    string
	fields []string
	err    error
}

func (p *fieldParser) str(i int) string {
	if i >= len(p.fields) {
		return ""
	}
	return strings.TrimSpace(p.fields[i])
}

func (p *fieldParser) fail(name, value string, err error) {
	if p.err == nil {
		p.err = &FieldError{Sentence: p.typ, Field: name, Value: value, Err: err}
	}
}

func (p *fieldParser) float(i int, name string) float64 {
	s := p.str(i)
	if s == "" || p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(name, s, unwrapNum(err))
		return 0
	}
	return v
}

func (p *fieldParser) int(i int, name string) int {
	s := p.str(i)
	if s == "" || p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(name, s, unwrapNum(err))
		return 0
	}
	return v
}

// letter reads a single character field restricted to allowed.
func (p *fieldParser) letter(i int, name, allowed string) string {
	s := strings.ToUpper(p.str(i))
	if s == "" || p.err != nil {
		return ""
	}
	if len(s) != 1 || !strings.Contains(allowed, s) {
		p.fail(name, s, nil)
		return ""
	}
	return s
}

// coord reads a ddmm.mmmm (or dddmm.mmmm) value and its hemisphere letter
// and returns signed decimal degrees.
func (p *fieldParser) coord(i int, name string, hemis string, max float64) (float64, string) {
	raw := p.str(i)
	hemi := p.letter(i+1, name+"_dir", hemis)
	if raw == "" || p.err != nil {
		return 0, hemi
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(name, raw, unwrapNum(err))
		return 0, hemi
	}
	deg, ok := degrees(v)
	if !ok || deg > max {
		p.fail(name, raw, errors.New("out of range"))
		return 0, hemi
	}
	if hemi == string(hemis[1]) {
		deg = -deg
	}
	return deg, hemi
}

// degrees converts DDMM.MMMM to decimal degrees.
func degrees(raw float64) (float64, bool) {
	if raw < 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, false
	}
	whole := math.Floor(raw / 100)
	minutes := math.Mod(raw, 100)
	if minutes >= 60 {
		return 0, false
	}
	return whole + minutes/60, true
}

// time reads hhmmss or hhmmss.sss.
func (p *fieldParser) time(i int, name string) Time {
	s := p.str(i)
	if s == "" || p.err != nil {
		return Time{}
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(whole) != 6 || !allDigits(whole) {
		p.fail(name, s, nil)
		return Time{}
	}
	t := Time{
		Valid:  true,
		Hour:   atoi2(whole[0:2]),
		Minute: atoi2(whole[2:4]),
		Second: atoi2(whole[4:6]),
	}
	if t.Hour > 23 || t.Minute > 59 || t.Second > 60 {
		p.fail(name, s, errors.New("out of range"))
		return Time{}
	}
	if frac != "" {
		if !allDigits(frac) {
			p.fail(name, s, nil)
			return Time{}
		}
		f, _ := strconv.ParseFloat("0."+frac, 64)
		t.Millisecond = int(math.Round(f * 1000))
		if t.Millisecond > 999 {
			t.Millisecond = 999
		}
	}
	return t
}

// date reads ddmmyy. Two digit years follow the POSIX %y pivot.
func (p *fieldParser) date(i int, name string) Date {
	s := p.str(i)
	if s == "" || p.err != nil {
		return Date{}
	}
	if len(s) != 6 || !allDigits(s) {
		p.fail(name, s, nil)
		return Date{}
	}
	d := Date{Valid: true, Day: atoi2(s[0:2]), Month: atoi2(s[2:4]), Year: atoi2(s[4:6])}
	if d.Day < 1 || d.Day > 31 || d.Month < 1 || d.Month > 12 {
		p.fail(name, s, errors.New("out of range"))
		return Date{}
	}
	if d.Year < 69 {
		d.Year += 2000
	} else {
		d.Year += 1900
	}
	return d
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func atoi2(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}

// unwrapNum drops the strconv wrapper; FieldError already names the value.
func unwrapNum(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
}
