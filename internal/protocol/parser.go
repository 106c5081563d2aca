// Package protocol decodes the line format emitted by the sensor firmware:
//
//	CO2:612,TVOC:45
//
// Each line is a comma separated list of LABEL:VALUE pairs where VALUE is a
// base-10 integer.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ponytojas/airlog/internal/models"
)

const (
	fieldSeparator = ","
	valueSeparator = ":"
)

var (
	ErrEmptyLine        = errors.New("empty line")
	ErrInvalidEncoding  = errors.New("line is not valid utf-8")
	ErrMissingSeparator = errors.New("field has no label separator")
	ErrInvalidValue     = errors.New("value is not a base-10 integer")
)

// ParseError reports a line that could not be turned into fields or a reading.
// Raw holds the line exactly as it came off the wire.
type ParseError struct {
	Raw   string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parse %q: field %q: %v", e.Raw, e.Field, e.Err)
	}
	return fmt.Sprintf("parse %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseLine splits raw into label/value pairs. When a label repeats, the
// last value wins.
func ParseLine(raw []byte) (models.Fields, error) {
	if !utf8.Valid(raw) {
		return nil, &ParseError{Raw: string(raw), Err: ErrInvalidEncoding}
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, &ParseError{Raw: string(raw), Err: ErrEmptyLine}
	}

	fields := models.Fields{}
	for _, field := range strings.Split(text, fieldSeparator) {
		label, value, found := strings.Cut(field, valueSeparator)
		if !found {
			return nil, &ParseError{Raw: string(raw), Field: field, Err: ErrMissingSeparator}
		}

		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, &ParseError{Raw: string(raw), Field: field, Err: ErrInvalidValue}
		}

		fields[strings.TrimSpace(label)] = n
	}

	return fields, nil
}

// ParseReading parses raw and checks that both CO2 and TVOC are present.
// A line missing either label is a parse failure.
func ParseReading(raw []byte) (models.Fields, models.Reading, error) {
	fields, err := ParseLine(raw)
	if err != nil {
		return nil, models.Reading{}, err
	}

	reading, err := models.NewReading(fields)
	if err != nil {
		return fields, models.Reading{}, &ParseError{Raw: string(raw), Err: err}
	}

	return fields, reading, nil
}
