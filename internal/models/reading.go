package models

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// LabelCO2 is the device label for carbon dioxide, in ppm
	LabelCO2 = "CO2"
	// LabelTVOC is the device label for total volatile organic compounds, in ppb
	LabelTVOC = "TVOC"

	// TimestampFormat is the ISO-8601 layout used for persisted readings. It
	// carries no zone offset so rows written by earlier versions of the
	// logger into the same column still sort in time order.
	TimestampFormat = "2006-01-02T15:04:05.000000"
)

// ErrMissingField is returned when a parsed line lacks CO2 or TVOC
var ErrMissingField = errors.New("missing required field")

// Fields maps a device label to its integer value, as parsed from one line
type Fields map[string]int

// Extra returns the labels other than CO2 and TVOC, sorted
func (f Fields) Extra() []string {
	var extra []string
	for label := range f {
		if label == LabelCO2 || label == LabelTVOC {
			continue
		}
		extra = append(extra, label)
	}
	sort.Strings(extra)
	return extra
}

// Reading is one persisted sensor sample. Timestamp and ID are assigned by
// the store at save time.
type Reading struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Timestamp string `gorm:"column:datetime" json:"timestamp"`
	CO2       int    `gorm:"column:co2" json:"co2"`
	TVOC      int    `gorm:"column:tvoc" json:"tvoc"`
}

// TableName keeps the table name used by earlier versions of the logger
func (Reading) TableName() string {
	return "reading"
}

// NewReading builds an unsaved reading from parsed fields
func NewReading(fields Fields) (Reading, error) {
	co2, ok := fields[LabelCO2]
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s", ErrMissingField, LabelCO2)
	}
	tvoc, ok := fields[LabelTVOC]
	if !ok {
		return Reading{}, fmt.Errorf("%w: %s", ErrMissingField, LabelTVOC)
	}

	return Reading{CO2: co2, TVOC: tvoc}, nil
}

func (r Reading) String() string {
	return fmt.Sprintf("Reading{id=%d timestamp=%q co2=%d tvoc=%d}", r.ID, r.Timestamp, r.CO2, r.TVOC)
}
