package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    time.Time
		wantErr string
	}{
		{name: "duration", spec: "1h30m", want: now.Add(-90 * time.Minute)},
		{name: "days as hours", spec: "72h", want: now.Add(-72 * time.Hour)},
		{name: "rfc3339", spec: "2024-02-28T08:15:00Z", want: time.Date(2024, 2, 28, 8, 15, 0, 0, time.UTC)},
		{name: "empty", spec: "", wantErr: "empty time specification"},
		{name: "negative duration", spec: "-1h", wantErr: "must be positive"},
		{name: "garbage", spec: "yesterday", wantErr: "invalid time specification: yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.spec, now)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParseRange(t *testing.T) {
	t.Run("open range", func(t *testing.T) {
		r, err := ParseRange("", "", now)
		require.NoError(t, err)
		assert.True(t, r.Contains(time.Time{}))
		assert.True(t, r.Contains(now))
	})

	t.Run("bounded range", func(t *testing.T) {
		r, err := ParseRange("2h", "1h", now)
		require.NoError(t, err)
		assert.True(t, r.Contains(now.Add(-90*time.Minute)))
		assert.True(t, r.Contains(now.Add(-2*time.Hour)))
		assert.False(t, r.Contains(now.Add(-3*time.Hour)))
		assert.False(t, r.Contains(now.Add(-30*time.Minute)))
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := ParseRange("1h", "2h", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--since must be before --until")
	})

	t.Run("bad flag is named", func(t *testing.T) {
		_, err := ParseRange("", "soon", now)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --until")
	})
}
