package lending

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedTime = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func TestValidateContact(t *testing.T) {
	cases := []struct {
		name  string
		in    [3]string
		valid error
	}{
		{"minimal", [3]string{"Ana Lima", "", ""}, nil},
		{"full", [3]string{"Ana Lima", "ana@school.edu", "+351 912-345-678"}, nil},
		{"blank name", [3]string{"   ", "", ""}, ErrInvalidName},
		{"long name", [3]string{strings.Repeat("x", 121), "", ""}, ErrInvalidName},
		{"control char", [3]string{"Ana\x00", "", ""}, ErrInvalidName},
		{"display name email", [3]string{"Ana", "Ana <ana@school.edu>", ""}, ErrInvalidEmail},
		{"no dot domain", [3]string{"Ana", "ana@localhost", ""}, ErrInvalidEmail},
		{"garbage email", [3]string{"Ana", "not-an-email", ""}, ErrInvalidEmail},
		{"short phone", [3]string{"Ana", "", "12345"}, ErrInvalidPhone},
		{"letters phone", [3]string{"Ana", "", "555-CALL-NOW"}, ErrInvalidPhone},
		{"long phone", [3]string{"Ana", "", "1234567890123456"}, ErrInvalidPhone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateContact(tc.in[0], tc.in[1], tc.in[2])
			if tc.valid == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.valid)
		})
	}
}

func TestRequester_Validate(t *testing.T) {
	r := Requester{ID: "s-100", Name: "Bruno", Email: "bruno@school.edu", Tier: TierLow}
	assert.NoError(t, r.Validate())

	r.ID = ""
	assert.ErrorIs(t, r.Validate(), ErrEmptyID)

	r.ID = "s-100"
	r.Tier = ""
	assert.ErrorIs(t, r.Validate(), ErrInvalidTier)
}

func TestRequester_MarkServedAndReturned(t *testing.T) {
	r := &Requester{ID: "s-1", Name: "C", Tier: TierHigh}

	_, err := r.MarkReturned(fixedTime)
	assert.ErrorIs(t, err, ErrRequesterNotServed)

	change, err := r.MarkServed(fixedTime)
	assert.NoError(t, err)
	assert.Equal(t, ServedChange{RequesterID: "s-1", Old: false, New: true}, change)

	_, err = r.MarkServed(fixedTime)
	assert.ErrorIs(t, err, ErrRequesterAlreadyServed)
	assert.True(t, r.HoldsDevice)
}
