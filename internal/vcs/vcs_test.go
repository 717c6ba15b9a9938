package vcs

import (
	"errors"
	"testing"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestSplitRange(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input    string
		from, to string
		isRange  bool
	}{
		"two dots":   {input: "v1.0.0..HEAD", from: "v1.0.0", to: "HEAD", isRange: true},
		"three dots": {input: "main...feature", from: "main", to: "feature", isRange: true},
		"single ref": {input: "abc1234", to: "abc1234"},
		"open start": {input: "..HEAD", from: "", to: "HEAD", isRange: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			from, to, ok := SplitRange(tt.input)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
			assert.Equal(t, tt.isRange, ok)
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("object not found")
	err := &Error{Op: "merge-base", Reason: "resolving main", Err: cause}

	assert.Equal(t, "vcs merge-base: resolving main: object not found", err.Error())
	assert.True(t, errors.Is(err, clierrors.ErrVcs))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, clierrors.Vcs, clierrors.Classify(err))
}

func TestShortHash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc1234", ShortHash("abc1234def5678"))
	assert.Equal(t, "abc", ShortHash("abc"))
}
