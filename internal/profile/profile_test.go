package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RequiredFields(t *testing.T) {
	p := &Profile{Mode: "dev"}
	require.Error(t, p.Validate())

	p.BotToken = "123:abc"
	require.Error(t, p.Validate())

	p.Admins = []int64{100}
	require.Error(t, p.Validate())

	p.DSN = "postgresql://u:p@localhost/safar"
	require.NoError(t, p.Validate())
}

func TestValidate_RewritesScheme(t *testing.T) {
	p := &Profile{
		Mode:     "dev",
		BotToken: "123:abc",
		Admins:   []int64{100},
		DSN:      "postgres://u:p@localhost/safar",
		SSLMode:  "require",
	}
	require.NoError(t, p.Validate())
	assert.Equal(t, "postgresql://u:p@localhost/safar", p.DSN)
}

func TestNormalizeDSN_SSLDisable(t *testing.T) {
	got := NormalizeDSN("postgres://u:p@localhost/safar", "disable")
	assert.Equal(t, "postgresql://u:p@localhost/safar?sslmode=disable", got)

	// Existing query string gets an ampersand.
	got = NormalizeDSN("postgresql://u:p@localhost/safar?connect_timeout=5", "disable")
	assert.Equal(t, "postgresql://u:p@localhost/safar?connect_timeout=5&sslmode=disable", got)

	// An explicit sslmode is left alone.
	got = NormalizeDSN("postgresql://u:p@localhost/safar?sslmode=require", "disable")
	assert.Equal(t, "postgresql://u:p@localhost/safar?sslmode=require", got)
}

func TestParseAdmins(t *testing.T) {
	tests := []struct {
		raw  string
		want []int64
	}{
		{"123,456", []int64{123, 456}},
		{" 123 , 456 ", []int64{123, 456}},
		{"123,abc,456", []int64{123, 456}},
		{"0,123", []int64{123}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseAdmins(tt.raw), "raw=%q", tt.raw)
	}
}

func TestIsAdmin(t *testing.T) {
	p := &Profile{Admins: []int64{1, 2, 3}}
	assert.True(t, p.IsAdmin(2))
	assert.False(t, p.IsAdmin(4))
}
