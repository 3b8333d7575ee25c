package bar

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Code
		wantErr bool
	}{
		{"upper", "BCDF12", "BCDF12", false},
		{"lower_trimmed", "  bcdf12 ", "BCDF12", false},
		{"digits", "123456", "123456", false},
		{"empty", "", "", true},
		{"blank", "   ", "", true},
		{"short", "BCD12", "", true},
		{"long", "BCDF123", "", true},
		{"vowel_upper", "BCDA12", "", true},
		{"vowel_lower", "bcdu12", "", true},
		{"symbol", "BCD-12", "", true},
		{"inner_space", "BC DF1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCode(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidCode))
				cat, ok := CategoryOf(err)
				require.True(t, ok)
				assert.Equal(t, CategoryValidation, cat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeCodeIdempotent(t *testing.T) {
	alphabet := []rune("bcdfghjklmnpqrstvwxyzBCDFGHJKLMNPQRSTVWXYZ0123456789")
	rapid.Check(t, func(t *rapid.T) {
		runes := rapid.SliceOfN(rapid.SampledFrom(alphabet), CodeLength, CodeLength).Draw(t, "code")
		raw := string(runes)
		first, err := NormalizeCode(raw)
		if err != nil {
			t.Fatalf("valid code %q rejected: %v", raw, err)
		}
		second, err := NormalizeCode(string(first))
		if err != nil {
			t.Fatalf("normalized code %q rejected: %v", first, err)
		}
		if first != second {
			t.Fatalf("not idempotent: %q then %q", first, second)
		}
	})
}

func TestNormalizeCodeRejectsVowels(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringMatching(`[A-Za-z0-9]{6}`).Draw(t, "raw")
		_, err := NormalizeCode(raw)
		hasVowel := strings.ContainsAny(strings.ToUpper(raw), "AEIOU")
		if hasVowel && err == nil {
			t.Fatalf("code %q with a vowel was accepted", raw)
		}
		if !hasVowel && err != nil {
			t.Fatalf("code %q without vowels was rejected: %v", raw, err)
		}
	})
}
