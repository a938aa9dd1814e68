package experiment

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CaptureRecord describes one accepted capture. Records are only created for
// images that were kept, and never change once appended.
type CaptureRecord struct {
	Seq       int
	FileName  string
	Latitude  float64
	Longitude float64
	Timestamp time.Time // UTC, millisecond precision
	RunID     string    // not part of the durable line
}

// stampLayout is MM-DD-HH-MM-SS; milliseconds are appended separately
// because Go layouts only allow a '.' or ',' before fractional seconds.
const stampLayout = "01-02-15-04-05"

// FormatStamp renders t (in UTC) as MM-DD-HH-MM-SS-mmm.
func FormatStamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%03d", t.Format(stampLayout), t.Nanosecond()/int(time.Millisecond))
}

// ParseStamp is the inverse of FormatStamp. The year is not recorded, so the
// result carries year 0.
func ParseStamp(s string) (time.Time, error) {
	i := strings.LastIndexByte(s, '-')
	if i < 0 {
		return time.Time{}, fmt.Errorf("malformed stamp %q", s)
	}
	t, err := time.ParseInLocation(stampLayout, s[:i], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed stamp %q: %w", s, err)
	}
	ms, err := strconv.Atoi(s[i+1:])
	if err != nil || len(s[i+1:]) != 3 {
		return time.Time{}, fmt.Errorf("malformed milliseconds in stamp %q", s)
	}
	return t.Add(time.Duration(ms) * time.Millisecond), nil
}

// Line renders the record as one durable log line, newline included.
func (r CaptureRecord) Line() string {
	return fmt.Sprintf("%s,%s,%s,%s\n",
		r.FileName,
		strconv.FormatFloat(r.Latitude, 'f', -1, 64),
		strconv.FormatFloat(r.Longitude, 'f', -1, 64),
		FormatStamp(r.Timestamp))
}

// ParseRecordLine parses a line produced by Line. Seq is recovered from the
// digits following the last '_' of the file name, when present.
func ParseRecordLine(line string) (CaptureRecord, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) != 4 {
		return CaptureRecord{}, fmt.Errorf("expected 4 fields, got %d in %q", len(fields), line)
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return CaptureRecord{}, fmt.Errorf("latitude %q: %w", fields[1], err)
	}
	lon, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return CaptureRecord{}, fmt.Errorf("longitude %q: %w", fields[2], err)
	}
	ts, err := ParseStamp(fields[3])
	if err != nil {
		return CaptureRecord{}, err
	}
	rec := CaptureRecord{
		Seq:       -1,
		FileName:  fields[0],
		Latitude:  lat,
		Longitude: lon,
		Timestamp: ts,
	}
	base := strings.TrimSuffix(fields[0], filepath.Ext(fields[0]))
	if i := strings.LastIndexByte(base, '_'); i >= 0 {
		if seq, err := strconv.Atoi(base[i+1:]); err == nil {
			rec.Seq = seq
		}
	}
	return rec, nil
}
