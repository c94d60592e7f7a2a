package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type backoff string

const (
	backoffFixed       backoff = "fixed"
	backoffExponential backoff = "exponential"
)

func newBackoffNormalizer() *Normalizer[backoff] {
	return NewNormalizer(map[string]backoff{
		"fixed":       backoffFixed,
		"exponential": backoffExponential,
		"exp":         backoffExponential,
	}, "")
}

func TestNormalize(t *testing.T) {
	n := newBackoffNormalizer()

	assert.Equal(t, backoffFixed, n.Normalize("fixed"))
	assert.Equal(t, backoffExponential, n.Normalize("  EXP "))
	assert.Equal(t, backoff(""), n.Normalize("linear"))
	assert.Equal(t, []string{"exp", "exponential", "fixed"}, n.Keys())
}

func TestResolve(t *testing.T) {
	n := newBackoffNormalizer()

	tests := []struct {
		name        string
		current     backoff
		want        backoff
		wantWarning string
	}{
		{name: "canonical", current: "fixed", want: backoffFixed},
		{name: "alias", current: "Exp", want: backoffExponential, wantWarning: "normalized retry from 'Exp' to 'exponential'"},
		{name: "empty", current: "", want: ""},
		{name: "blank", current: "  ", want: "  "},
		{name: "unknown", current: "linear", want: backoffFixed, wantWarning: "unknown retry 'linear', defaulting to fixed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warning := n.Resolve("retry", tt.current, backoffFixed)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantWarning, warning)
		})
	}
}
