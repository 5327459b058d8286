package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestTemplateRenders(t *testing.T) {
	sender, err := NewSMTPEmailSender("smtp.example.com", 587, "user", "pass", "TrackKeeper <digest@example.com>", 30*time.Second)
	require.NoError(t, err)

	email := DigestEmail{
		To: "listener@example.com",
		Tracks: []DigestTrack{
			{
				Name:         "Lost Song",
				Artist:       "Some Band",
				Album:        "Some Album",
				PlaylistName: "Road Trip",
				RemovedAt:    time.Date(2026, time.August, 24, 10, 0, 0, 0, time.UTC),
				Suggested:    true,
			},
			{
				Name:         "Другой трек",
				Artist:       "Artist & Friends",
				PlaylistName: "Liked Songs",
				RemovedAt:    time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC),
			},
		},
		UnsubscribeURL: "https://trackkeeper.example.com/unsubscribe?token=abc",
	}

	var body bytes.Buffer
	require.NoError(t, sender.tmpl.Execute(&body, email))
	html := body.String()

	assert.Contains(t, html, "Lost Song")
	assert.Contains(t, html, "Road Trip")
	assert.Contains(t, html, "Aug 24")
	assert.Contains(t, html, "https://trackkeeper.example.com/unsubscribe?token=abc")
	// HTML in artist names must be escaped, not injected
	assert.Contains(t, html, "Artist &amp; Friends")

	// The plain-text alternative carries the same content without escaping
	var text bytes.Buffer
	require.NoError(t, sender.textTmpl.Execute(&text, email))
	assert.Contains(t, text.String(), "Lost Song by Some Band (Some Album)")
	assert.Contains(t, text.String(), "Artist & Friends")
	assert.Contains(t, text.String(), "https://trackkeeper.example.com/unsubscribe?token=abc")
}

func TestSMTPEmailSenderRejectsBadRecipient(t *testing.T) {
	sender, err := NewSMTPEmailSender("smtp.example.com", 587, "user", "pass", "digest@example.com", time.Second)
	require.NoError(t, err)

	err = sender.SendDigest(context.Background(), DigestEmail{To: "not-an-address"})
	assert.Error(t, err)
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "digest@example.com", envelopeAddress("TrackKeeper <digest@example.com>"))
	assert.Equal(t, "digest@example.com", envelopeAddress("digest@example.com"))
}

func TestMockEmailSenderRecordsDigests(t *testing.T) {
	sender := NewMockEmailSender()
	email := DigestEmail{To: "listener@example.com", Tracks: []DigestTrack{{Name: "One"}}}

	require.NoError(t, sender.SendDigest(context.Background(), email))
	require.Len(t, sender.Sent, 1)
	assert.Equal(t, email, sender.Sent[0])
}
