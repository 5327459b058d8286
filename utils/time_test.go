package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUTCNow(t *testing.T) {
	assert.Equal(t, time.UTC, UTCNow().Location())
}

func TestUTCNowAdd(t *testing.T) {
	before := UTCNow().Add(30 * time.Minute)
	got := UTCNowAdd(30 * time.Minute)
	after := UTCNow().Add(30 * time.Minute)

	assert.Equal(t, time.UTC, got.Location())
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}
