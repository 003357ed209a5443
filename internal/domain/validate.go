package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Recognized CSV column names, case-sensitive.
const (
	ColDate        = "date"
	ColMagnitude   = "magnitude"
	ColLocation    = "location"
	ColDepth       = "depth"
	ColLatitude    = "latitude"
	ColLongitude   = "longitude"
	ColDescription = "description"
)

// RequiredColumns lists every column that must be non-empty for a row to be
// considered at all. description is the only optional column.
var RequiredColumns = []string{
	ColDate, ColMagnitude, ColLocation, ColDepth, ColLatitude, ColLongitude,
}

// dateLayouts are tried in order by ParseDate. Unambiguous ISO forms first,
// then the slash and text forms spreadsheet exports produce.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
}

// ParseDate parses a record date string under the accepted layouts and
// returns the instant normalized to UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ValidateRow checks one raw CSV row and either normalizes it into a Record
// or explains why it cannot be. rowNum is the spreadsheet row number used in
// reason strings (the first data row is 2).
//
// Exactly one of the results is meaningful: the reasons slice is empty when
// and only when the returned Record is valid. ValidateRow is pure: the same
// row always produces the same result.
func ValidateRow(row RawRow, rowNum int) (Record, []string) {
	for _, col := range RequiredColumns {
		if strings.TrimSpace(row[col]) == "" {
			// A row missing fields gets the one presence reason; numeric and
			// range checks against absent values would only add noise.
			return Record{}, []string{fmt.Sprintf("Row %d: Missing required fields", rowNum)}
		}
	}

	var reasons []string

	magnitude, magOK := parseFinite(row[ColMagnitude])
	depth, depthOK := parseFinite(row[ColDepth])
	latitude, latOK := parseFinite(row[ColLatitude])
	longitude, lonOK := parseFinite(row[ColLongitude])
	if !magOK || !depthOK || !latOK || !lonOK {
		reasons = append(reasons, fmt.Sprintf("Row %d: Invalid numeric values", rowNum))
	}

	// Range checks only apply to values that parsed; independent fields are
	// judged independently so one row can carry several reasons.
	if latOK && (latitude < -90 || latitude > 90) {
		reasons = append(reasons, fmt.Sprintf("Row %d: Latitude must be between -90 and 90", rowNum))
	}
	if lonOK && (longitude < -180 || longitude > 180) {
		reasons = append(reasons, fmt.Sprintf("Row %d: Longitude must be between -180 and 180", rowNum))
	}

	timestamp, err := ParseDate(row[ColDate])
	if err != nil {
		reasons = append(reasons, fmt.Sprintf("Row %d: Invalid date", rowNum))
	}

	if len(reasons) > 0 {
		return Record{}, reasons
	}

	return Record{
		Date:        strings.TrimSpace(row[ColDate]),
		Timestamp:   timestamp,
		Magnitude:   magnitude,
		Location:    strings.TrimSpace(row[ColLocation]),
		Depth:       depth,
		Latitude:    latitude,
		Longitude:   longitude,
		Description: strings.TrimSpace(row[ColDescription]),
	}, nil
}

// Validate applies the persistence constraints to an already-typed record,
// used for manual-entry submissions before they reach the store. The reasons
// slice is empty when the record is persistable.
func (r Record) Validate() []string {
	var reasons []string

	if strings.TrimSpace(r.Date) == "" || strings.TrimSpace(r.Location) == "" {
		reasons = append(reasons, "missing required fields")
	}
	if !isFinite(r.Magnitude) || !isFinite(r.Depth) || !isFinite(r.Latitude) || !isFinite(r.Longitude) {
		reasons = append(reasons, "invalid numeric values")
	}
	if isFinite(r.Latitude) && (r.Latitude < -90 || r.Latitude > 90) {
		reasons = append(reasons, "latitude must be between -90 and 90")
	}
	if isFinite(r.Longitude) && (r.Longitude < -180 || r.Longitude > 180) {
		reasons = append(reasons, "longitude must be between -180 and 180")
	}
	if strings.TrimSpace(r.Date) != "" {
		if _, err := ParseDate(r.Date); err != nil {
			reasons = append(reasons, "invalid date")
		}
	}

	return reasons
}

// parseFinite parses a string as a finite float64. strconv accepts "NaN" and
// "Inf", which the record constraints do not.
func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
