package graph

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "malware", want: "malware"},
		{name: "hyphen", in: "attack-pattern", want: "attack_pattern"},
		{name: "colon hyphen quote newline", in: "x:a-\"b\nc", want: "x a_bc"},
		{name: "spaced punctuation", in: "a,b;c.d'e", want: "a b c d e"},
		{name: "dropped", in: "a\\b\r\"c", want: "abc"},
		{name: "unicode kept", in: "ünïcode_ok", want: "ünïcode_ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestNewLabel(t *testing.T) {
	label, err := NewLabel("intrusion-set")
	require.NoError(t, err)
	assert.Equal(t, Label("intrusion_set"), label)

	for _, bad := range []string{"", "\"\"", "\n\r", "...", " : "} {
		_, err := NewLabel(bad)
		assert.True(t, errors.Is(err, ErrInvalidLabel), "%q", bad)
	}
}

func TestNewRelType(t *testing.T) {
	rt, err := NewRelType("attributed-to")
	require.NoError(t, err)
	assert.Equal(t, RelType("attributed_to"), rt)

	_, err = NewRelType("")
	assert.True(t, errors.Is(err, ErrInvalidRelType))
}
