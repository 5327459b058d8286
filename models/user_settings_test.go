package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetentionWindow(t *testing.T) {
	day := 24 * time.Hour

	tests := []struct {
		name        string
		persistence string
		expected    time.Duration
		expires     bool
	}{
		{name: "forever never expires", persistence: PersistenceForever, expected: 0, expires: false},
		{name: "30 days", persistence: Persistence30Days, expected: 30 * day, expires: true},
		{name: "90 days", persistence: Persistence90Days, expected: 90 * day, expires: true},
		{name: "180 days", persistence: Persistence180Days, expected: 180 * day, expires: true},
		{name: "1 year", persistence: Persistence1Year, expected: 365 * day, expires: true},
		{name: "unknown value is treated as forever", persistence: "6 weeks", expected: 0, expires: false},
		{name: "empty value is treated as forever", persistence: "", expected: 0, expires: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := &UserSettings{PlaylistPersistence: tt.persistence}
			window, expires := settings.RetentionWindow()
			assert.Equal(t, tt.expires, expires)
			assert.Equal(t, tt.expected, window)
		})
	}
}
