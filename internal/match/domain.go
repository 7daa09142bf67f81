package match

import (
	"net/url"
	"strings"
)

// GenericDomains are hosting, social and deployment platforms shared by
// unrelated projects. Two companies linking to one of these never match on
// domain alone.
var GenericDomains = []string{
	"github.io", "github.com", "gitlab.com", "vercel.app",
	"netlify.app", "herokuapp.com", "linkedin.com", "twitter.com",
	"facebook.com", "medium.com", "wordpress.com",
}

// ExtractDomain returns the lower-cased hostname of rawURL with a leading
// "www." removed. Bare hosts ("acme.io/about") are accepted. Returns "" when
// no hostname can be parsed.
func ExtractDomain(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}

// domainSet is a denylist lookup that also covers subdomains, so
// "myproject.github.io" is generic because "github.io" is.
type domainSet map[string]struct{}

func newDomainSet(domains []string) domainSet {
	s := make(domainSet, len(domains))
	for _, d := range domains {
		s[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return s
}

func (s domainSet) contains(host string) bool {
	for host != "" {
		if _, ok := s[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
	return false
}
