package sweep

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// EnvironmentError aborts a sweep.
type EnvironmentError struct {
	Op   string
	Path string
	Err  error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// Row is one line of the timing log.
type Row struct {
	Run     int
	Value   int
	Seconds float64
}

// Header is the first line of a timing log for parameter.
func Header(parameter string) string {
	return "run\t" + parameter + "\tseconds"
}

// TimingLog is an append-only TSV with one header line. Every row is
// synced to disk before Append returns.
type TimingLog struct {
	f         *os.File
	path      string
	parameter string
}

// OpenTimingLog opens path for appending. The header is written when the
// file is new or empty; an existing header must name the same parameter.
func OpenTimingLog(path, parameter string) (*TimingLog, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &EnvironmentError{Op: "open timing log", Path: path, Err: err}
	}
	l := &TimingLog{f: f, path: path, parameter: parameter}
	if err := l.prepare(); err != nil {
		f.Close()
		return nil, &EnvironmentError{Op: "open timing log", Path: path, Err: err}
	}
	return l, nil
}

func (l *TimingLog) prepare() error {
	info, err := l.f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return l.write(Header(l.parameter) + "\n")
	}
	first, err := bufio.NewReader(io.NewSectionReader(l.f, 0, size)).ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if got := strings.TrimRight(first, "\r\n"); got != Header(l.parameter) {
		return fmt.Errorf("existing header %q does not match %q", got, Header(l.parameter))
	}
	last := make([]byte, 1)
	if _, err := l.f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] != '\n' {
		return l.write("\n")
	}
	return nil
}

func (l *TimingLog) write(s string) error {
	if _, err := l.f.WriteString(s); err != nil {
		return err
	}
	return l.f.Sync()
}

// Path ...
func (l *TimingLog) Path() string {
	return l.path
}

// Append writes and syncs one row.
func (l *TimingLog) Append(r Row) error {
	if err := l.write(fmt.Sprintf("%d\t%d\t%.2f\n", r.Run, r.Value, r.Seconds)); err != nil {
		return &EnvironmentError{Op: "append timing row", Path: l.path, Err: err}
	}
	return nil
}

// Close ...
func (l *TimingLog) Close() error {
	return l.f.Close()
}

// ReadTimingLog parses a timing log back into its parameter name and rows.
func ReadTimingLog(path string) (string, []Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("%s: missing header", path)
	}
	header := strings.Split(scanner.Text(), "\t")
	if len(header) != 3 || header[0] != "run" || header[2] != "seconds" {
		return "", nil, fmt.Errorf("%s: malformed header %q", path, scanner.Text())
	}
	var rows []Row
	for line := 2; scanner.Scan(); line++ {
		text := scanner.Text()
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 3 {
			return "", nil, fmt.Errorf("%s:%d: expected 3 fields, got %d", path, line, len(fields))
		}
		run, err := strconv.Atoi(fields[0])
		if err != nil {
			return "", nil, fmt.Errorf("%s:%d: run: %w", path, line, err)
		}
		value, err := strconv.Atoi(fields[1])
		if err != nil {
			return "", nil, fmt.Errorf("%s:%d: %s: %w", path, line, header[1], err)
		}
		seconds, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return "", nil, fmt.Errorf("%s:%d: seconds: %w", path, line, err)
		}
		rows = append(rows, Row{Run: run, Value: value, Seconds: seconds})
	}
	return header[1], rows, scanner.Err()
}
