// Package domain models earthquake records and the rules that admit them.
//
// # Data Source
//
// Records enter the system two ways: one at a time through the admin
// dashboard's manual-entry form, or in bulk from operator-supplied CSV files
// produced by spreadsheet data-entry workflows. Bulk files routinely mix
// good and bad rows, so per-row validation never aborts the file.
//
// # CSV Contract
//
// The header row is case-sensitive and names these columns, in canonical
// order (column order in the file does not matter):
//
//	date, magnitude, location, depth, latitude, longitude, description
//
// Only description is optional; it defaults to the empty string. Blank lines
// are skipped. Row numbers in rejection reasons are the numbers a human sees
// in a spreadsheet: the header is row 1, the first data row is row 2.
//
// # Validation Rules
//
// Applied per row, in order:
//
//  1. Presence: date, magnitude, location, depth, latitude and longitude must
//     be non-empty. A row missing any of them is rejected with
//     "Row N: Missing required fields" and no further checks run; numeric
//     checks on absent fields would only produce noise.
//  2. Numeric: magnitude, depth, latitude and longitude must parse as finite
//     real numbers ("Row N: Invalid numeric values"). NaN and infinities are
//     rejected even though strconv accepts them.
//  3. Range: latitude in [-90, 90], longitude in [-180, 180], each with its
//     own reason string.
//  4. Date: the date string must parse under one of the accepted layouts
//     ("Row N: Invalid date"); the record's timestamp is derived from it.
//
// Independent checks accumulate, so a single row can carry several reasons.
// A row producing zero reasons yields a normalized Record with numeric
// fields as float64 and the timestamp set.
//
// # Date Layouts
//
// Spreadsheet exports are inconsistent about date formats, so [ParseDate]
// accepts ISO dates and timestamps, RFC 3339, slash-separated forms, and
// "Jan 2, 2006". All parsed times are normalized to UTC.
package domain
