package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// progressParser turns "-progress pipe:1" key=value lines into completed
// fractions of total.
type progressParser struct {
	total time.Duration
}

// parse returns the fraction reported by line, if any. "progress=end"
// reports 1.
func (p progressParser) parse(line string) (float64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}

	var elapsed time.Duration
	switch key {
	case "progress":
		if value == "end" {
			return 1, true
		}
		return 0, false
	case "out_time_us", "out_time_ms": // both are microseconds
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		elapsed = time.Duration(us) * time.Microsecond
	case "out_time":
		d, ok := parseClock(value)
		if !ok {
			return 0, false
		}
		elapsed = d
	default:
		return 0, false
	}

	if p.total <= 0 {
		return 0, false
	}
	return min(float64(elapsed)/float64(p.total), 1), true
}

// parseClock parses HH:MM:SS.micro.
func parseClock(value string) (time.Duration, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	s, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || s < 0 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s*float64(time.Second)), true
}
