package gps

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const knotsToKmh = 1.852

type sentence struct {
	Type string
	// Fields is the comma-split payload (excluding $ and checksum).
	Fields []string
}

func parseSentence(line string) (sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return sentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return sentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return sentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return sentence{}, fmt.Errorf("nmea: bad checksum")
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return sentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	if len(parts[0]) < 3 {
		return sentence{}, fmt.Errorf("nmea: short type")
	}
	// Normalize GPxxx/GNxxx talker IDs to the last 3 chars.
	t := parts[0]
	if len(t) > 3 {
		t = t[len(t)-3:]
	}
	return sentence{Type: strings.ToUpper(t), Fields: parts}, nil
}

type fixState struct {
	device string
	baud   int

	latDeg float64
	lonDeg float64
	latOK  bool
	lonOK  bool

	speedKmh float64
	speedOK  bool

	courseDeg float64
	courseOK  bool

	satellites int
	satsOK     bool
	hdop       float64
	hdopOK     bool

	lastFix time.Time
	valid   bool

	lastErr string
}

func (s *fixState) apply(nowUTC time.Time, sent sentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(nowUTC, sent.Fields)
	case "GGA":
		return s.applyGGA(nowUTC, sent.Fields)
	default:
		return false
	}
}

func (s *fixState) snapshot() Snapshot {
	out := Snapshot{
		Enabled: true,
		Valid:   s.valid,
		Device:  s.device,
		Baud:    s.baud,
		LatDeg:  s.latDeg,
		LonDeg:  s.lonDeg,
	}
	if s.speedOK {
		v := s.speedKmh
		out.SpeedKmh = &v
	}
	if s.courseOK {
		v := s.courseDeg
		out.CourseDeg = &v
	}
	if s.satsOK {
		v := s.satellites
		out.Satellites = &v
	}
	if s.hdopOK {
		v := s.hdop
		out.HDOP = &v
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
	out.LastError = s.lastErr
	return out
}

// RMC: Recommended Minimum Specific GNSS Data
//
//	1: time  2: status (A/V)  3,4: lat  5,6: lon
//	7: speed over ground (knots)  8: course over ground (deg)
func (s *fixState) applyRMC(nowUTC time.Time, f []string) bool {
	if len(f) < 10 {
		return false
	}
	if strings.TrimSpace(f[2]) != "A" {
		// Void fix; keep the last known position.
		return false
	}

	if lat, ok := parseLatLon(f[3], f[4]); ok {
		s.latDeg = lat
		s.latOK = true
	}
	if lon, ok := parseLatLon(f[5], f[6]); ok {
		s.lonDeg = lon
		s.lonOK = true
	}
	if kt, ok := parseFloat(f[7]); ok {
		s.speedKmh = kt * knotsToKmh
		s.speedOK = true
	}
	if crs, ok := parseFloat(f[8]); ok {
		s.courseDeg = math.Mod(crs+360.0, 360.0)
		s.courseOK = true
	}

	if s.latOK && s.lonOK {
		s.lastFix = nowUTC
		s.valid = true
		return true
	}
	return false
}

// GGA: Fix Data
//
//	2,3: lat  4,5: lon  6: fix quality  7: satellites  8: HDOP
func (s *fixState) applyGGA(nowUTC time.Time, f []string) bool {
	if len(f) < 9 {
		return false
	}
	q := strings.TrimSpace(f[6])
	if q == "" || q == "0" {
		return false
	}
	if sats, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		s.satellites = sats
		s.satsOK = true
	}
	if hdop, ok := parseFloat(f[8]); ok {
		s.hdop = hdop
		s.hdopOK = true
	}

	updated := false
	if lat, ok := parseLatLon(f[2], f[3]); ok {
		s.latDeg = lat
		s.latOK = true
		updated = true
	}
	if lon, ok := parseLatLon(f[4], f[5]); ok {
		s.lonDeg = lon
		s.lonOK = true
		updated = true
	}

	if s.latOK && s.lonOK {
		s.lastFix = nowUTC
		s.valid = true
		return updated
	}
	return false
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseLatLon parses NMEA ddmm.mmmm (lat) or dddmm.mmmm (lon) plus
// hemisphere into signed decimal degrees.
func parseLatLon(v, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil {
		return 0, false
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
