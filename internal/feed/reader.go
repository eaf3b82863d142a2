// Package feed adapts external trade sources into pipeline input lines.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rewired-gh/polysentinel/internal/decoder"
	"github.com/rewired-gh/polysentinel/internal/logger"
)

const (
	readBufferSize = 64 * 1024
	maxLineSize    = 1 << 20
)

// Submitter accepts raw wire lines. pipeline.Pipeline implements it.
type Submitter interface {
	Submit(line string) bool
	Running() bool
}

// Rejecter is implemented by submitters that account for lines dropped
// before submission.
type Rejecter interface {
	Reject(reason string)
}

// OpenPipe opens the named pipe (or any file) at path for reading.
// Opening a FIFO blocks until a writer connects.
func OpenPipe(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}
	return f, nil
}

// ReadLines forwards every line of r to sub until EOF, ctx is cancelled or
// sub stops running. A blocked read is only interrupted by closing r.
// Lines longer than 1 MiB are dropped and reading continues.
func ReadLines(ctx context.Context, r io.Reader, sub Submitter) error {
	br := bufio.NewReaderSize(r, readBufferSize)

	for sub.Running() && ctx.Err() == nil {
		line, tooLong, err := readLine(br, maxLineSize)
		switch {
		case tooLong:
			logger.Warn("Dropping input line longer than %d bytes", maxLineSize)
			if rej, ok := sub.(Rejecter); ok {
				rej.Reject(decoder.ReasonTooLong)
			}
		case len(line) > 0 || err == nil:
			sub.Submit(string(line))
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
	}
	return nil
}

// readLine returns the next line without its "\n" or "\r\n" terminator.
// A line exceeding limit is consumed up to its terminator and reported as
// tooLong with no content.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(bytes.TrimSuffix(bytes.TrimSuffix(line, []byte("\n")), []byte("\r"))) > limit {
				tooLong = true
				line = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			return nil, true, err
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		return line, false, err
	}
}
