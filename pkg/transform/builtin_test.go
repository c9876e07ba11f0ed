package transform

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoolean(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"True", true},
		{"t", true},
		{"1", true},
		{"FALSE", false},
		{"f", false},
		{"0", false},
		{"maybe", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Boolean(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGender(t *testing.T) {
	tests := []struct {
		in   string
		want interface{}
	}{
		{"M", GenderMale},
		{" female ", GenderFemale},
		{"Woman", GenderFemale},
		{"o", GenderOther},
		{"unknown", GenderNotSpecified},
		{"xyz", GenderNotSpecified},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Gender(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDate(t *testing.T) {
	fn := Date("1/2/2006")

	got, err := fn("03/15/1990")
	require.NoError(t, err)
	assert.Equal(t, "1990-03-15 00:00:00", got)

	got, err = fn("3/5/1990")
	require.NoError(t, err)
	assert.Equal(t, "1990-03-05 00:00:00", got)

	got, err = fn("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = fn("1990-03-15")
	assert.Error(t, err)
}

func TestPlural(t *testing.T) {
	got, err := Plural("")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{}, got)

	got, err = Plural(`[{"clientId":"abc"}]`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{map[string]interface{}{"clientId": "abc"}}, got)

	_, err = Plural(`{"not":"an array"}`)
	assert.Error(t, err)

	_, err = Plural(`[oops`)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	got, err := Password("password-phpass-md5")(" $P$abc \n")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"type": "password-phpass-md5", "value": "$P$abc"}, got)

	got, err = Password("password-phpass-md5")("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaltedPassword(t *testing.T) {
	blob := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0xAA, 0xBB, 0xCC})
	got, err := SaltedPassword("password-sha256-salted", 2)(blob)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"type":  "password-sha256-salted",
		"value": map[string]interface{}{"salt": "0102", "digest": "aabbcc"},
	}, got)

	_, err = SaltedPassword("x", 8)(base64.StdEncoding.EncodeToString([]byte{1, 2}))
	assert.Error(t, err)

	_, err = SaltedPassword("x", 2)("%%%")
	assert.Error(t, err)
}

func TestNow(t *testing.T) {
	fixed := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := Now(func() time.Time { return fixed })("ignored")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02 03:04:05", got)
}

func TestFacebookProfile(t *testing.T) {
	got, err := FacebookProfile("42")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{map[string]interface{}{
		"identifier": "http://www.facebook.com/profile.php?id=42",
		"domain":     "facebook.com",
	}}, got)
}

func TestBuildUnknownKind(t *testing.T) {
	_, err := DefaultOptions().Build("rot13")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}
