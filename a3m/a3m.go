// Package a3m reads and writes the FASTA-style alignment text the
// prediction service accepts in its msa field.
package a3m

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format is the value sent in the alignment's format field.
const Format = "a3m"

// Record a single aligned sequence
type Record struct {
	Header   string
	Sequence string
}

// ErrSuccessfullyStopped returned by ReadRecords when
// the reader was stopped before reaching the end of input.
var ErrSuccessfullyStopped = errors.New("stopped successfully")

// ReadRecords ...
func ReadRecords(
	r io.Reader,
	results chan<- *Record,
	stop <-chan int,
) error {
	defer close(results)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var next *Record
	emit := func() error {
		if next == nil {
			return nil
		}
		select {
		case results <- next:
			next = nil
			return nil
		case <-stop:
			return ErrSuccessfullyStopped
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			// a3m files may start with a "#<lengths>" line
			continue
		case strings.HasPrefix(line, ">"):
			if err := emit(); err != nil {
				return err
			}
			next = &Record{Header: strings.TrimSpace(line[1:])}
		default:
			if next == nil {
				return fmt.Errorf("sequence data before first header: %q", truncate(line, 32))
			}
			next.Sequence += line
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return emit()
}

// ReadAll collects every record in r.
func ReadAll(r io.Reader) ([]*Record, error) {
	results := make(chan *Record)
	errc := make(chan error, 1)
	go func() {
		errc <- ReadRecords(r, results, nil)
	}()
	var records []*Record
	for rec := range results {
		records = append(records, rec)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return records, nil
}

// Parse is ReadAll over an in-memory alignment.
func Parse(text string) ([]*Record, error) {
	return ReadAll(strings.NewReader(text))
}

// Valid reports whether text holds a record with residues. Reading stops
// at the first such record, so large alignments are not parsed in full.
func Valid(text string) bool {
	results := make(chan *Record)
	stop := make(chan int)
	errc := make(chan error, 1)
	go func() {
		errc <- ReadRecords(strings.NewReader(text), results, stop)
	}()
	found := false
	for rec := range results {
		if rec.Sequence != "" {
			found = true
			close(stop)
			break
		}
	}
	<-errc
	return found
}

// Write renders records without a trailing newline, which is the form
// the service receives for single-sequence alignments.
func Write(records ...*Record) string {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('>')
		b.WriteString(rec.Header)
		b.WriteByte('\n')
		b.WriteString(rec.Sequence)
	}
	return b.String()
}

// SingleSequence builds the one-entry alignment used when no alignment
// data is available for a target.
func SingleSequence(sequence string) string {
	return Write(&Record{Header: "seq1", Sequence: sequence})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
