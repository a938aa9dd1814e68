package experiment

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	startLine = "Starting new experiment!\n"
	endPrefix = "Ended experiment ----- "
	endSuffix = " MB"
)

// DataLog is the durable, append-only location log. Every write is synced to
// stable storage before the call returns, so a crash loses at most the
// iteration in flight.
type DataLog struct {
	path string
	file *os.File
}

// durableLog is the part of DataLog the Supervisor drives.
type durableLog interface {
	RecordSink
	Path() string
	Begin() error
	End(totalSize float64) error
	Close() error
}

func openDurableLog(path string) (durableLog, error) {
	l, err := OpenDataLog(path)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// OpenDataLog opens path for appending, creating it and its directory if
// needed. Earlier runs stay in the file.
func OpenDataLog(path string) (*DataLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening data log: %w", err)
	}
	return &DataLog{path: path, file: f}, nil
}

// Path returns the file the log writes to.
func (l *DataLog) Path() string { return l.path }

// Begin writes the run start marker.
func (l *DataLog) Begin() error {
	return l.writeSynced(startLine)
}

// Append writes one capture line. It implements RecordSink.
func (l *DataLog) Append(rec CaptureRecord) error {
	return l.writeSynced(rec.Line())
}

// End writes the run summary with the total size rounded up.
func (l *DataLog) End(totalSize float64) error {
	return l.writeSynced(fmt.Sprintf("%s%d%s\n", endPrefix, int64(math.Ceil(totalSize)), endSuffix))
}

// Close closes the underlying file. Calling it twice is an error.
func (l *DataLog) Close() error {
	return l.file.Close()
}

func (l *DataLog) writeSynced(s string) error {
	if _, err := l.file.WriteString(s); err != nil {
		return fmt.Errorf("writing data log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing data log: %w", err)
	}
	return nil
}

// RunLog is one run as read back from a durable log.
type RunLog struct {
	Records []CaptureRecord
	Ended   bool  // the end marker was found
	SizeMB  int64 // size from the end marker; 0 when !Ended
}

// ParseDataLog splits a durable log into runs. Lines that are neither
// markers nor valid records are counted in skipped and otherwise ignored.
func ParseDataLog(r io.Reader) (runs []RunLog, skipped int, err error) {
	var cur *RunLog
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == strings.TrimSuffix(startLine, "\n"):
			runs = append(runs, RunLog{})
			cur = &runs[len(runs)-1]
		case strings.HasPrefix(line, endPrefix):
			n, convErr := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(line, endPrefix), endSuffix), 10, 64)
			if convErr != nil {
				// pre-integer logs wrote a float ("12.0 MB")
				f, fErr := strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(line, endPrefix), endSuffix), 64)
				if fErr != nil {
					skipped++
					continue
				}
				n = int64(math.Ceil(f))
			}
			if cur == nil {
				runs = append(runs, RunLog{})
				cur = &runs[len(runs)-1]
			}
			cur.Ended = true
			cur.SizeMB = n
			cur = nil
		case strings.TrimSpace(line) == "":
		default:
			rec, recErr := ParseRecordLine(line)
			if recErr != nil {
				skipped++
				continue
			}
			if cur == nil {
				runs = append(runs, RunLog{})
				cur = &runs[len(runs)-1]
			}
			cur.Records = append(cur.Records, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("reading data log: %w", err)
	}
	return runs, skipped, nil
}
