package match

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/athena/internal/config"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercase", "NovaMind", "novamind"},
		{"strip ag", "Resmonics AG", "resmonics"},
		{"strip gmbh", "Acme GmbH", "acme"},
		{"strip inc dot", "Acme Inc.", "acme"},
		{"strip corp", "Acme Corp", "acme"},
		{"strip llc", "Acme LLC", "acme"},
		{"strip ltd", "Acme Ltd", "acme"},
		{"stacked suffixes", "Acme Ltd Inc", "acme"},
		{"suffix then punct", "Acme GmbH.", "acme"},
		{"trailing punctuation", "Acme, ", "acme"},
		{"trailing dash", "Acme —", "acme"},
		{"suffix not trailing", "AG Robotics", "ag robotics"},
		{"suffix alone kept", "Inc", "inc"},
		{"surrounding whitespace", "  Nova Labs  ", "nova labs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeName_Idempotent(t *testing.T) {
	inputs := []string{
		"Resmonics AG", "Acme Ltd Inc", "Acme GmbH.", "Foo Corp., ",
		"NovaMind AI", "Zürich Robotics SA", "x", "", "  -- ",
	}
	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once), "input %q", in)
	}
}

func TestNormalizeName_ComposesUnicode(t *testing.T) {
	// "e" + combining acute vs precomposed "é".
	assert.Equal(t, NormalizeName("Caf\u00e9 Labs"), NormalizeName("Cafe\u0301 Labs"))
}

func TestBigramSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, BigramSimilarity("novamind", "novamind"), 1e-9)
	assert.InDelta(t, 0.0, BigramSimilarity("a", "abc"), 1e-9)
	assert.InDelta(t, 0.0, BigramSimilarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, BigramSimilarity("abcd", "wxyz"), 1e-9)
	// {ni,ig,gh,ht} vs {na,ac,ch,ht}: one shared of eight.
	assert.InDelta(t, 0.25, BigramSimilarity("night", "nacht"), 1e-9)
	assert.Less(t, BigramSimilarity("teleport", "telleroo"), 0.5)
}

func TestBigramSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"novamind", "novamind ai"},
		{"teleport", "telleroo"},
		{"ab", "abc"},
		{"x", "xyz"},
		{"quantum leap", "leap quantum"},
	}
	for _, p := range pairs {
		assert.InDelta(t, BigramSimilarity(p[0], p[1]), BigramSimilarity(p[1], p[0]), 1e-12, "%q vs %q", p[0], p[1])
	}
}

func TestBigramSimilarity_SelfIsOne(t *testing.T) {
	for _, s := range []string{"ab", "aaa", "novamind", "zürich"} {
		assert.InDelta(t, 1.0, BigramSimilarity(s, s), 1e-12, s)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"https://www.acme.io/about", "acme.io"},
		{"http://ACME.io", "acme.io"},
		{"acme.io/pricing", "acme.io"},
		{"https://myproject.github.io", "myproject.github.io"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractDomain(tt.in), tt.in)
	}
}

func TestIsGenericDomain(t *testing.T) {
	m := NewMatcher(DefaultOptions())
	assert.True(t, m.IsGenericDomain("github.com"))
	assert.True(t, m.IsGenericDomain("myproject.github.io"))
	assert.True(t, m.IsGenericDomain("app.vercel.app"))
	assert.False(t, m.IsGenericDomain("acme.io"))
	assert.False(t, m.IsGenericDomain("notgithub.io"))
}

func TestIsLikelyTitle(t *testing.T) {
	m := NewMatcher(DefaultOptions())
	assert.True(t, m.IsLikelyTitle("Show HN: NovaMind"))
	assert.True(t, m.IsLikelyTitle("I built a thing"))
	assert.True(t, m.IsLikelyTitle("The Best Startup"))
	assert.True(t, m.IsLikelyTitle("We launched"))
	assert.True(t, m.IsLikelyTitle("one two three four five six seven"))
	assert.False(t, m.IsLikelyTitle("NovaMind AI"))
	assert.False(t, m.IsLikelyTitle("Theorem Labs"))
	assert.False(t, m.IsLikelyTitle("one two three four five six"))
}

func TestIsMatch(t *testing.T) {
	tests := []struct {
		name       string
		a, b       string
		webA, webB string
		want       bool
		reason     string
	}{
		{"exact after suffix", "Resmonics", "Resmonics AG", "", "", true, ReasonExactName},
		{"exact case", "novamind", "NovaMind", "", "", true, ReasonExactName},
		{"containment", "NovaMind", "NovaMind AI", "", "", true, ReasonContainment},
		{"containment reversed", "NovaMind Labs", "NovaMind", "", "", true, ReasonContainment},
		{"containment too short", "AI", "AI Labs", "", "", false, ""},
		{"containment too much extra", "NovaMind", "NovaMind Robotics", "", "", false, ""},
		{"same domain similar names", "Climatix", "Climatix Energy Systems", "https://climatix.io", "https://www.climatix.io/en", true, "same domain (climatix.io)"},
		{"same domain dissimilar names", "Alpha", "Zulu", "https://shared.io", "https://shared.io", false, ""},
		{"generic domain", "Fooproj", "Fooproject Tools", "https://myproject.github.io", "https://myproject.github.io", false, ""},
		{"title filtered", "Show HN: NovaMind", "NovaMind", "", "", false, ""},
		{"long title filtered", "NovaMind is a tool that helps you", "NovaMind", "", "", false, ""},
		{"different", "Teleport", "Telleroo", "", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := IsMatch(tt.a, tt.b, tt.webA, tt.webB)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestIsMatch_Symmetric(t *testing.T) {
	pairs := [][4]string{
		{"NovaMind", "NovaMind AI", "", ""},
		{"Climatix", "Climatix Energy", "climatix.io", "climatix.io"},
		{"Teleport", "Telleroo", "", ""},
	}
	for _, p := range pairs {
		ab, _ := IsMatch(p[0], p[1], p[2], p[3])
		ba, _ := IsMatch(p[1], p[0], p[3], p[2])
		assert.Equal(t, ab, ba, "%q vs %q", p[0], p[1])
	}
}

func TestMatcher_CustomOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.MinContainmentLen = 2
	m := NewMatcher(opts)

	ok, reason := m.IsMatch("AI", "AI Labs", "", "")
	assert.True(t, ok)
	assert.Equal(t, ReasonContainment, reason)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.MatchConfig{})
	assert.Equal(t, DefaultOptions(), opts)

	opts = OptionsFromConfig(config.MatchConfig{
		MinContainmentLen:   8,
		ExtraGenericDomains: []string{"carrd.co"},
	})
	assert.Equal(t, 8, opts.MinContainmentLen)
	assert.Equal(t, 0.3, opts.MinDomainSimilarity)
	assert.Len(t, opts.GenericDomains, len(GenericDomains)+1)
	assert.Len(t, GenericDomains, len(DefaultOptions().GenericDomains), "package list untouched")

	m := NewMatcher(opts)
	assert.True(t, m.IsGenericDomain("acme.carrd.co"))
	assert.False(t, NewMatcher(DefaultOptions()).IsGenericDomain("acme.carrd.co"))
}
