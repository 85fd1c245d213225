package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kyudo-console/domain"
)

func at(day, hour int) time.Time {
	return time.Date(2025, time.June, day, hour, 0, 0, 0, time.UTC)
}

func TestRange_Overlaps(t *testing.T) {
	june10 := Range{Start: at(10, 0), End: at(10, 23)}

	tests := []struct {
		name  string
		event Range
		want  bool
	}{
		{"inside", Range{Start: at(10, 9), End: at(10, 12)}, true},
		{"starts before, ends inside", Range{Start: at(9, 18), End: at(10, 1)}, true},
		{"spans the whole range", Range{Start: at(1, 0), End: at(30, 0)}, true},
		{"touches the end", Range{Start: at(10, 23), End: at(11, 2)}, true},
		{"entirely before", Range{Start: at(8, 0), End: at(9, 23)}, false},
		{"entirely after", Range{Start: at(11, 0), End: at(11, 1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, june10.Overlaps(tt.event))
			assert.Equal(t, tt.want, tt.event.Overlaps(june10), "overlap is symmetric")
		})
	}
}

func TestRange_Validate(t *testing.T) {
	require.NoError(t, Range{Start: at(1, 0), End: at(1, 0)}.Validate())

	err := Range{Start: at(2, 0), End: at(1, 0)}.Validate()
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestMonth(t *testing.T) {
	r := Month(at(15, 12))
	assert.Equal(t, at(1, 0), r.Start)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), r.End)
}

func TestEventInput_Validate(t *testing.T) {
	valid := EventInput{Title: "Monthly shinsa", StartsAt: at(3, 9), EndsAt: at(3, 17), Color: "#AABBCC"}
	require.NoError(t, valid.Validate())

	noTitle := valid
	noTitle.Title = "  "
	assert.ErrorIs(t, noTitle.Validate(), domain.ErrInvalid)

	backwards := valid
	backwards.EndsAt = at(2, 0)
	assert.EqualError(t, backwards.Validate(), "endsAt must not be before startsAt")

	badColor := valid
	badColor.Color = "red"
	assert.EqualError(t, badColor.Validate(), "color must be #rrggbb")
	badColor.Color = "#abc"
	assert.EqualError(t, badColor.Validate(), "color must be #rrggbb")
}
