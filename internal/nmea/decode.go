package nmea

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DatumWGS84 is the NMEA DTM code for the WGS84 datum, the only one the
// decoder supports.
const DatumWGS84 = "W84"

// Report is a decoded NMEA sentence of interest. Decode returns nil for
// sentence types that carry nothing the assembler needs.
type Report interface {
	isReport()
}

// Coordinates is the positional part of a fix, from a GGA sentence.
// GeoidSep is the geoid separation (ellipsoid height minus orthometric
// altitude) as reported by the receiver.
type Coordinates struct {
	Time     time.Time
	Lat      float64 // decimal degrees, north positive
	Lon      float64 // decimal degrees, east positive
	Alt      float64 // orthometric altitude, meters
	GeoidSep float64 // meters
}

// Accuracies carries the 1-sigma position error estimates from a GST
// sentence.
type Accuracies struct {
	Time  time.Time
	LatSD float64 // meters
	LonSD float64 // meters
	AltSD float64 // meters
}

// DatumChange is a DTM sentence announcing the local datum code.
type DatumChange struct {
	Datum string
}

func (Coordinates) isReport() {}
func (Accuracies) isReport()  {}
func (DatumChange) isReport() {}

// Checksum is the XOR fold of every payload byte between '$' and '*'.
func Checksum(payload string) byte {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

// Decode validates and parses one framed sentence. now supplies the calendar
// date for the fix-time field, which NMEA does not carry.
//
// The return contract is (report, nil) for a sentence the assembler cares
// about, (nil, nil) for a valid but uninteresting sentence type, and
// (nil, err) for malformed input.
func Decode(now time.Time, sentence string) (Report, error) {
	if !strings.HasPrefix(sentence, "$") {
		return nil, fmt.Errorf("nmea: missing '$'")
	}
	payload := sentence[1:]

	// Device-generated sentences may omit the checksum suffix; validate only
	// when one is present.
	if star := strings.LastIndexByte(payload, '*'); star != -1 {
		suffix := payload[star+1:]
		payload = payload[:star]
		want, err := strconv.ParseUint(suffix, 16, 8)
		if err != nil || len(suffix) != 2 {
			return nil, fmt.Errorf("nmea: bad checksum suffix %q", suffix)
		}
		if got := Checksum(payload); got != byte(want) {
			return nil, fmt.Errorf("nmea: checksum mismatch: computed %02X, sentence has %s", got, suffix)
		}
	}

	fields := strings.Split(payload, ",")
	typeField := fields[0]
	switch {
	case strings.Contains(typeField, "GGA"):
		return decodeGGA(now, fields)
	case strings.Contains(typeField, "GST"):
		return decodeGST(now, fields)
	case strings.Contains(typeField, "DTM"):
		return decodeDTM(fields)
	default:
		return nil, nil
	}
}

// GGA: fix time, lat/lon, fix quality, satellites, HDOP, orthometric
// altitude, geoid separation.
func decodeGGA(now time.Time, f []string) (Report, error) {
	if len(f) < 13 {
		return nil, fmt.Errorf("nmea: GGA has %d fields, need 13", len(f))
	}
	t, err := parseFixTime(now, f[1])
	if err != nil {
		return nil, err
	}
	lat, err := parseLatitude(f[2], f[3])
	if err != nil {
		return nil, err
	}
	lon, err := parseLongitude(f[4], f[5])
	if err != nil {
		return nil, err
	}
	alt, err := parseFloat("altitude", f[9])
	if err != nil {
		return nil, err
	}
	sep, err := parseFloat("geoid separation", f[11])
	if err != nil {
		return nil, err
	}
	return Coordinates{Time: t, Lat: lat, Lon: lon, Alt: alt, GeoidSep: sep}, nil
}

// GST: fix time, RMS, error ellipse, then lat/lon/alt standard deviations.
func decodeGST(now time.Time, f []string) (Report, error) {
	if len(f) < 9 {
		return nil, fmt.Errorf("nmea: GST has %d fields, need 9", len(f))
	}
	t, err := parseFixTime(now, f[1])
	if err != nil {
		return nil, err
	}
	latSD, err := parseFloat("latitude sd", f[6])
	if err != nil {
		return nil, err
	}
	lonSD, err := parseFloat("longitude sd", f[7])
	if err != nil {
		return nil, err
	}
	altSD, err := parseFloat("altitude sd", f[8])
	if err != nil {
		return nil, err
	}
	return Accuracies{Time: t, LatSD: latSD, LonSD: lonSD, AltSD: altSD}, nil
}

// DTM: local datum code in the first field.
func decodeDTM(f []string) (Report, error) {
	if len(f) < 2 || strings.TrimSpace(f[1]) == "" {
		return nil, fmt.Errorf("nmea: DTM missing datum code")
	}
	return DatumChange{Datum: strings.TrimSpace(f[1])}, nil
}

// parseFixTime combines an hhmmss[.sss] field with the calendar date of now.
// NMEA carries no date in GGA/GST, so epoch correlation relies on same-day
// monotonicity; a UTC midnight rollover between sentences of one epoch is a
// known limitation.
func parseFixTime(now time.Time, s string) (time.Time, error) {
	hms, frac, _ := strings.Cut(s, ".")
	if len(hms) != 6 {
		return time.Time{}, fmt.Errorf("nmea: bad fix time %q", s)
	}
	hh, err1 := strconv.Atoi(hms[0:2])
	mm, err2 := strconv.Atoi(hms[2:4])
	ss, err3 := strconv.Atoi(hms[4:6])
	if err1 != nil || err2 != nil || err3 != nil || hh > 23 || mm > 59 || ss > 60 {
		return time.Time{}, fmt.Errorf("nmea: bad fix time %q", s)
	}
	ns := 0
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		fv, err := strconv.Atoi(frac)
		if err != nil {
			return time.Time{}, fmt.Errorf("nmea: bad fix time %q", s)
		}
		for i := len(frac); i < 9; i++ {
			fv *= 10
		}
		ns = fv
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), hh, mm, ss, ns, time.UTC), nil
}

// parseLatitude converts ddmm.mmmm plus an N/S hemisphere to signed decimal
// degrees.
func parseLatitude(v, hemi string) (float64, error) {
	deg, err := parseDegreesMinutes(v, 2)
	if err != nil {
		return 0, fmt.Errorf("nmea: bad latitude %q: %w", v, err)
	}
	switch hemi {
	case "N":
		return deg, nil
	case "S":
		return -deg, nil
	default:
		return 0, fmt.Errorf("nmea: bad latitude hemisphere %q", hemi)
	}
}

// parseLongitude converts dddmm.mmmm plus an E/W hemisphere to signed
// decimal degrees.
func parseLongitude(v, hemi string) (float64, error) {
	deg, err := parseDegreesMinutes(v, 3)
	if err != nil {
		return 0, fmt.Errorf("nmea: bad longitude %q: %w", v, err)
	}
	switch hemi {
	case "E":
		return deg, nil
	case "W":
		return -deg, nil
	default:
		return 0, fmt.Errorf("nmea: bad longitude hemisphere %q", hemi)
	}
}

func parseDegreesMinutes(v string, degDigits int) (float64, error) {
	if len(v) < degDigits+2 {
		return 0, fmt.Errorf("too short")
	}
	deg, err := strconv.Atoi(v[:degDigits])
	if err != nil {
		return 0, err
	}
	mins, err := strconv.ParseFloat(v[degDigits:], 64)
	if err != nil {
		return 0, err
	}
	return float64(deg) + mins/60.0, nil
}

func parseFloat(what, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("nmea: bad %s %q", what, s)
	}
	return v, nil
}
