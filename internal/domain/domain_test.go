package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowOverlaps(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	w := Window{Start: base, End: base.Add(2 * time.Hour)}

	tests := []struct {
		name  string
		other Window
		want  bool
	}{
		{"identical", w, true},
		{"touching after", Window{Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour)}, false},
		{"touching before", Window{Start: base.Add(-time.Hour), End: base}, false},
		{"partial", Window{Start: base.Add(time.Hour), End: base.Add(3 * time.Hour)}, true},
		{"contained", Window{Start: base.Add(30 * time.Minute), End: base.Add(time.Hour)}, true},
		{"disjoint", Window{Start: base.Add(5 * time.Hour), End: base.Add(6 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(w))
		})
	}
}

func TestWindowValidate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, Window{Start: now, End: now.Add(time.Minute)}.Validate())
	assert.ErrorIs(t, Window{Start: now, End: now}.Validate(), ErrEmptyWindow)
	assert.ErrorIs(t, Window{Start: now, End: now.Add(-time.Minute)}.Validate(), ErrEmptyWindow)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusPending, StatusExpired))
	assert.True(t, CanTransition(StatusConfirmed, StatusCheckedIn))
	assert.True(t, CanTransition(StatusConfirmed, StatusNoShow))

	assert.False(t, CanTransition(StatusConfirmed, StatusPending))
	assert.False(t, CanTransition(StatusConfirmed, StatusExpired))
	assert.False(t, CanTransition(StatusPending, StatusCheckedIn))
	assert.False(t, CanTransition(StatusCancelled, StatusCancelled))

	for _, s := range []BookingStatus{
		StatusRejected, StatusExpired, StatusCancelled, StatusCheckedIn,
		StatusCheckedOut, StatusCompleted, StatusNoShow,
	} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
}

func TestActiveStatuses(t *testing.T) {
	assert.True(t, StatusPending.IsActive())
	assert.True(t, StatusConfirmed.IsActive())
	assert.True(t, StatusCheckedIn.IsActive())
	assert.False(t, StatusCancelled.IsActive())
	assert.False(t, StatusExpired.IsActive())
}

func TestParseBookingStatus(t *testing.T) {
	st, err := ParseBookingStatus("noshow")
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, st)

	_, err = ParseBookingStatus("archived")
	assert.Error(t, err)
}
