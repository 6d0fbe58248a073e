package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLinkedInURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "full url with casing query and trailing slash",
			input: "https://www.LinkedIn.com/in/John-Doe/?x=1",
			want:  "linkedin.com/in/john-doe",
		},
		{
			name:  "bare username",
			input: "aturilin",
			want:  "linkedin.com/in/aturilin",
		},
		{
			name:  "no protocol",
			input: "linkedin.com/in/jane-smith",
			want:  "linkedin.com/in/jane-smith",
		},
		{
			name:  "http with www and fragment",
			input: "http://www.linkedin.com/in/bob#about",
			want:  "linkedin.com/in/bob",
		},
		{
			name:  "already canonical",
			input: "linkedin.com/in/john-doe",
			want:  "linkedin.com/in/john-doe",
		},
		{
			name:    "search url rejected",
			input:   "https://www.linkedin.com/search/results/all/?keywords=john%20doe",
			wantErr: true,
		},
		{
			name:    "keywords query rejected",
			input:   "linkedin.com/feed?keywords=jane",
			wantErr: true,
		},
		{
			name:    "company page rejected",
			input:   "https://www.linkedin.com/company/acme",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "  ",
			wantErr: true,
		},
		{
			name:    "username with invalid characters",
			input:   "linkedin.com/in/иван",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLinkedInURL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeLinkedInURLRoundTrip(t *testing.T) {
	// A normalized value must normalize to itself so repeated ingestion of
	// the same profile converges on one identity row.
	first, err := NormalizeLinkedInURL("https://www.LinkedIn.com/in/John-Doe/?x=1")
	require.NoError(t, err)

	second, err := NormalizeLinkedInURL(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeIdentity(t *testing.T) {
	tests := []struct {
		name    string
		ns      Namespace
		input   string
		want    string
		wantErr bool
	}{
		{name: "email lowercased", ns: NamespaceEmail, input: " John.Doe@Example.COM ", want: "john.doe@example.com"},
		{name: "telegram strips at", ns: NamespaceTelegram, input: "@Aturilin", want: "aturilin"},
		{name: "phone keeps plus and digits", ns: NamespacePhone, input: "+1 (415) 555-01 99", want: "+14155550199"},
		{name: "phone without plus", ns: NamespacePhone, input: "8 916 123 45 67", want: "89161234567"},
		{name: "phone with no digits", ns: NamespacePhone, input: "+-()", wantErr: true},
		{name: "freeform name collapses whitespace", ns: NamespaceFreeformName, input: "  John   Doe ", want: "John Doe"},
		{name: "calendar name", ns: NamespaceCalendarName, input: "Jane\tSmith", want: "Jane Smith"},
		{name: "email hash lowercased", ns: NamespaceEmailHash, input: "ABCDEF0123", want: "abcdef0123"},
		{name: "empty value", ns: NamespaceEmail, input: "", wantErr: true},
		{name: "unknown namespace", ns: Namespace("twitter"), input: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeIdentity(tt.ns, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{name: "identical", a: "John Doe", b: "John Doe", min: 1.0, max: 1.0},
		{name: "case insensitive", a: "john doe", b: "John Doe", min: 1.0, max: 1.0},
		{name: "close variant", a: "Jon Doe", b: "John Doe", min: 0.7, max: 0.99},
		{name: "different surname discounted", a: "John Doe", b: "John Smith", min: 0.0, max: 0.3},
		{name: "unrelated", a: "Alice Wang", b: "Boris Petrov", min: 0.0, max: 0.3},
		{name: "empty side", a: "", b: "John", min: 0.0, max: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NameSimilarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestCanonicalPairIsOrderIndependent(t *testing.T) {
	a := mustUUID(t, "0a0a0a0a-0000-0000-0000-000000000001")
	b := mustUUID(t, "f0f0f0f0-0000-0000-0000-000000000002")

	x1, y1 := CanonicalPair(a, b)
	x2, y2 := CanonicalPair(b, a)
	assert.Equal(t, x1, x2)
	assert.Equal(t, y1, y2)
	assert.Equal(t, a, x1)
	assert.Equal(t, b, y1)
}
