package protocol

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/airlog/internal/models"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  models.Fields
	}{
		{"device line", "CO2:612,TVOC:45", models.Fields{"CO2": 612, "TVOC": 45}},
		{"line terminator", "CO2:612,TVOC:45\r\n", models.Fields{"CO2": 612, "TVOC": 45}},
		{"surrounding whitespace", "  CO2:400,TVOC:10 \n", models.Fields{"CO2": 400, "TVOC": 10}},
		{"duplicate label", "CO2:1,CO2:2", models.Fields{"CO2": 2}},
		{"extra labels", "CO2:400,TVOC:10,TEMP:-3", models.Fields{"CO2": 400, "TVOC": 10, "TEMP": -3}},
		{"spaces around value", "CO2: 400, TVOC: 10", models.Fields{"CO2": 400, "TVOC": 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"empty", []byte(""), ErrEmptyLine},
		{"whitespace only", []byte(" \r\n"), ErrEmptyLine},
		{"non-integer value", []byte("CO2:abc,TVOC:45"), ErrInvalidValue},
		{"missing separator", []byte("CO2612,TVOC:45"), ErrMissingSeparator},
		{"garbage", []byte("garbage"), ErrMissingSeparator},
		{"empty field", []byte("CO2:1,,TVOC:2"), ErrMissingSeparator},
		{"second colon", []byte("CO2:1:2"), ErrInvalidValue},
		{"decimal value", []byte("CO2:1.5,TVOC:2"), ErrInvalidValue},
		{"partial line after timeout", []byte("CO2:4,TV"), ErrMissingSeparator},
		{"invalid utf-8", []byte{'C', 'O', '2', ':', 0xff}, ErrInvalidEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, string(tt.input), parseErr.Raw)
		})
	}
}

func TestParseLine_AnyOrder(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		want := models.Fields{}
		var parts []string
		count := 1 + r.Intn(8)
		for n := 0; n < count; n++ {
			label := fmt.Sprintf("K%d", n)
			value := r.Intn(20000) - 10000
			want[label] = value
			parts = append(parts, fmt.Sprintf("%s:%d", label, value))
		}
		r.Shuffle(len(parts), func(a, b int) { parts[a], parts[b] = parts[b], parts[a] })

		got, err := ParseLine([]byte(strings.Join(parts, ",")))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseReading(t *testing.T) {
	fields, reading, err := ParseReading([]byte("CO2:612,TVOC:45,TEMP:21\n"))
	require.NoError(t, err)
	assert.Equal(t, models.Reading{CO2: 612, TVOC: 45}, reading)
	assert.Equal(t, []string{"TEMP"}, fields.Extra())
}

func TestParseReading_MissingLabel(t *testing.T) {
	_, _, err := ParseReading([]byte("CO2:612"))
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "CO2:612", parseErr.Raw)
	assert.True(t, errors.Is(err, models.ErrMissingField))
}
