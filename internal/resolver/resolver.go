// Package resolver extracts a tenant identifier from request routing
// metadata. It is a pure function of the metadata plus environment
// configuration; registry lookups happen later in the router.
package resolver

import (
	"errors"
	"net"
	"regexp"
	"strings"

	gosimpleslug "github.com/gosimple/slug"
	"github.com/smallbiznis/tenantplane/internal/config"
)

// ErrUnresolved marks a request whose tenant identifier is missing or
// malformed. It is an expected outcome, not a failure: callers surface it as
// "unknown tenant", never as a 5xx.
var ErrUnresolved = errors.New("tenant_unresolved")

// Source records where the identifier came from. Header-sourced identifiers
// are lower-trust and validated with the same slug rule.
type Source string

const (
	SourceSubdomain Source = "subdomain"
	SourceHeader    Source = "header"
)

// Candidate is a request-scoped tenant identifier awaiting registry lookup.
type Candidate struct {
	Slug   string
	Source Source
}

// RequestMetadata is the routing metadata the resolver consumes.
type RequestMetadata struct {
	Host       string
	HeaderSlug string
}

// slugPattern enforces 3-30 chars, lowercase alphanumerics with internal
// hyphens, alphanumeric at both ends.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,28}[a-z0-9]$`)

// ValidSlug reports whether s satisfies the tenant slug rule.
func ValidSlug(s string) bool {
	if !slugPattern.MatchString(s) {
		return false
	}
	return gosimpleslug.IsSlug(s)
}

type Resolver struct {
	baseDomain string
	reserved   map[string]struct{}
}

func New(cfg config.Config) *Resolver {
	reserved := make(map[string]struct{}, len(cfg.ReservedSubdomains))
	for _, label := range cfg.ReservedSubdomains {
		reserved[strings.ToLower(label)] = struct{}{}
	}
	return &Resolver{
		baseDomain: strings.ToLower(strings.TrimSpace(cfg.BaseDomain)),
		reserved:   reserved,
	}
}

// Resolve returns the tenant candidate for a request.
//
// Outcomes:
//   - (candidate, nil): a tenant identifier was found and is well-formed.
//   - (nil, nil): a reserved subdomain; the caller is the control plane and
//     proceeds with no tenant context.
//   - (nil, ErrUnresolved): missing or malformed identifier.
func (r *Resolver) Resolve(meta RequestMetadata) (*Candidate, error) {
	label, onBaseDomain := r.subdomainLabel(meta.Host)

	if onBaseDomain && label != "" {
		if _, ok := r.reserved[label]; ok {
			return nil, nil
		}
		if !ValidSlug(label) {
			return nil, ErrUnresolved
		}
		return &Candidate{Slug: label, Source: SourceSubdomain}, nil
	}

	// Header fallback applies only when the host carries no subdomain, e.g.
	// programmatic clients hitting the apex or a load balancer address.
	header := strings.ToLower(strings.TrimSpace(meta.HeaderSlug))
	if header != "" {
		if !ValidSlug(header) {
			return nil, ErrUnresolved
		}
		return &Candidate{Slug: header, Source: SourceHeader}, nil
	}

	return nil, ErrUnresolved
}

// subdomainLabel returns the label in front of the base domain, and whether
// the host belongs to the base domain at all.
func (r *Resolver) subdomainLabel(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || r.baseDomain == "" {
		return "", false
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if host == r.baseDomain {
		return "", true
	}

	suffix := "." + r.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}

	label := strings.TrimSuffix(host, suffix)
	// Nested subdomains are not tenant identifiers.
	if strings.Contains(label, ".") {
		return "", false
	}
	return label, true
}
