package netcdf

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DecodeYears converts CF time coordinates ("<unit> since <date>") to
// calendar years. Only the year is kept; intra-year offsets are dropped.
func DecodeYears(values []float64, units, calendar string) ([]int, error) {
	unit, base, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	cal := strings.ToLower(strings.TrimSpace(calendar))

	years := make([]int, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid time value at step %d", i)
		}
		y, err := yearAt(base, unit, v, cal)
		if err != nil {
			return nil, err
		}
		years[i] = y
	}
	return years, nil
}

func parseTimeUnits(units string) (string, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return "", time.Time{}, fmt.Errorf("unsupported time units %q", units)
	}
	unit := strings.ToLower(strings.TrimSpace(parts[0]))

	ref := strings.TrimSpace(parts[1])
	if i := strings.IndexAny(ref, " T"); i >= 0 {
		ref = ref[:i]
	}
	base, err := time.Parse("2006-1-2", ref)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("unsupported reference date in %q: %w", units, err)
	}
	return unit, base, nil
}

func yearAt(base time.Time, unit string, v float64, calendar string) (int, error) {
	var days float64
	switch unit {
	case "years", "year", "common_years":
		return base.Year() + int(math.Floor(v)), nil
	case "months", "month":
		m := int(base.Month()) - 1 + int(math.Floor(v))
		return base.Year() + floorDiv(m, 12), nil
	case "days", "day", "d":
		days = v
	case "hours", "hour", "h":
		days = v / 24
	case "minutes", "minute", "min":
		days = v / (24 * 60)
	case "seconds", "second", "s":
		days = v / (24 * 60 * 60)
	default:
		return 0, fmt.Errorf("unsupported time unit %q", unit)
	}

	switch calendar {
	case "", "standard", "gregorian", "proleptic_gregorian", "julian":
		whole := math.Floor(days)
		t := base.AddDate(0, 0, int(whole)).Add(time.Duration((days - whole) * float64(24*time.Hour)))
		return t.Year(), nil
	case "noleap", "365_day":
		return fixedYear(base, days, 365), nil
	case "all_leap", "366_day":
		return fixedYear(base, days, 366), nil
	case "360_day":
		return fixedYear(base, days, 360), nil
	default:
		return 0, fmt.Errorf("unsupported calendar %q", calendar)
	}
}

// fixedYear handles calendars where every year has the same length.
func fixedYear(base time.Time, days float64, yearLen int) int {
	offset := float64(base.YearDay()-1) + days
	if yearLen == 360 {
		offset = float64((int(base.Month())-1)*30+base.Day()-1) + days
	}
	return base.Year() + int(math.Floor(offset/float64(yearLen)))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
