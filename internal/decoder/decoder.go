// Package decoder parses the bracket-delimited trade lines produced by the feed.
//
// A line is exactly eight fields, each wrapped in braces with no separators:
//
//	{title}{name}{outcome}{outcome_value}{side}{size}{price}{timestamp}
package decoder

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rewired-gh/polysentinel/internal/models"
)

const (
	openBrace  = '{'
	closeBrace = '}'

	// FieldCount is the number of fields in a wire line.
	FieldCount = 8
)

const (
	fieldTitle = iota
	fieldName
	fieldOutcome
	fieldOutcomeValue
	fieldSide
	fieldSize
	fieldPrice
	fieldTimestamp
)

var fieldNames = [FieldCount]string{
	"title", "name", "outcome", "outcome_value", "side", "size", "price", "timestamp",
}

var (
	ErrIncorrectBrace = errors.New("incorrect brace")
	ErrNoValues       = errors.New("no values found")
	ErrFieldCount     = errors.New("wrong field count")
	ErrBraceInField   = errors.New("field contains a brace")
)

// Rejection reasons, used as metric labels.
const (
	ReasonIncorrectBrace = "incorrect_brace"
	ReasonNoValues       = "no_values"
	ReasonFieldCount     = "field_count"
	ReasonNumeric        = "numeric"
	ReasonInvalid        = "invalid"
	// ReasonTooLong is reported by readers for lines they refuse to buffer.
	ReasonTooLong = "too_long"
)

// FieldError reports a numeric field that failed to parse.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: cannot parse %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// RejectError is returned for every line that does not produce a record.
type RejectError struct {
	Line string
	Err  error
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Line)
}

func (e *RejectError) Unwrap() error { return e.Err }

// Reason classifies the rejection.
func (e *RejectError) Reason() string {
	var fe *FieldError
	switch {
	case errors.Is(e.Err, ErrIncorrectBrace):
		return ReasonIncorrectBrace
	case errors.Is(e.Err, ErrNoValues):
		return ReasonNoValues
	case errors.Is(e.Err, ErrFieldCount):
		return ReasonFieldCount
	case errors.As(e.Err, &fe):
		return ReasonNumeric
	default:
		return ReasonInvalid
	}
}

func reject(line string, err error) error {
	return &RejectError{Line: line, Err: err}
}

// Split scans line into its completed bracketed fields. Fields are sliced
// from line unchanged, whatever their encoding.
// Text outside braces and an unterminated trailing field are discarded.
func Split(line string) ([]string, error) {
	var (
		fields  []string
		start   int
		inField bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == openBrace && inField, c == closeBrace && !inField:
			return nil, ErrIncorrectBrace
		case c == openBrace:
			inField = true
			start = i + 1
		case c == closeBrace:
			inField = false
			fields = append(fields, line[start:i])
		}
	}
	return fields, nil
}

// Decode parses one wire line into a record.
// Any failure is reported as a *RejectError carrying the original line.
func Decode(line string) (models.Record, error) {
	fields, err := Split(line)
	if err != nil {
		return models.Record{}, reject(line, err)
	}
	if len(fields) == 0 {
		return models.Record{}, reject(line, ErrNoValues)
	}
	if len(fields) < FieldCount {
		return models.Record{}, reject(line, fmt.Errorf("%w: expected %d values but found %d", ErrFieldCount, FieldCount, len(fields)))
	}

	outcomeValue, err := parseInt(fields, fieldOutcomeValue)
	if err != nil {
		return models.Record{}, reject(line, err)
	}
	size, err := parseInt(fields, fieldSize)
	if err != nil {
		return models.Record{}, reject(line, err)
	}
	price, err := parseFloat(fields, fieldPrice)
	if err != nil {
		return models.Record{}, reject(line, err)
	}

	rec := models.Record{
		Title:        fields[fieldTitle],
		Name:         fields[fieldName],
		Outcome:      fields[fieldOutcome],
		OutcomeValue: models.Outcome(outcomeValue),
		Side:         fields[fieldSide],
		Size:         size,
		Price:        price,
		Timestamp:    fields[fieldTimestamp],
	}
	if err := rec.Validate(); err != nil {
		return models.Record{}, reject(line, fmt.Errorf("invalid record: %w", err))
	}
	return rec, nil
}

// parseInt accepts a 32-bit integer or a decimal literal in that range,
// truncating the latter toward zero. The feed reports fractional share sizes.
func parseInt(fields []string, idx int) (int, error) {
	raw := strings.TrimSpace(fields[idx])
	n, err := strconv.ParseInt(raw, 10, 32)
	if err == nil {
		return int(n), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, &FieldError{Field: fieldNames[idx], Value: fields[idx], Err: strconv.ErrRange}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		if err == nil {
			err = strconv.ErrRange
		}
		return 0, &FieldError{Field: fieldNames[idx], Value: fields[idx], Err: err}
	}
	return int(f), nil
}

func parseFloat(fields []string, idx int) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
	if err != nil {
		return 0, &FieldError{Field: fieldNames[idx], Value: fields[idx], Err: err}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &FieldError{Field: fieldNames[idx], Value: fields[idx], Err: strconv.ErrRange}
	}
	return f, nil
}

// Encode joins fields into a wire line without the trailing newline.
func Encode(fields ...string) (string, error) {
	var b strings.Builder
	for _, f := range fields {
		if strings.ContainsAny(f, "{}") {
			return "", fmt.Errorf("%w: %q", ErrBraceInField, f)
		}
		b.WriteByte(openBrace)
		b.WriteString(f)
		b.WriteByte(closeBrace)
	}
	return b.String(), nil
}

// EncodeRecord renders rec in wire format.
func EncodeRecord(rec models.Record) (string, error) {
	return Encode(
		rec.Title,
		rec.Name,
		rec.Outcome,
		strconv.Itoa(int(rec.OutcomeValue)),
		rec.Side,
		strconv.Itoa(rec.Size),
		strconv.FormatFloat(rec.Price, 'g', -1, 64),
		rec.Timestamp,
	)
}
