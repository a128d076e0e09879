package tenants

import (
	"net"
	"net/url"
	"strings"
)

// Navigator performs a full browser-level navigation to a different origin.
// Tenant-scoped cookies and state are domain-scoped, so crossing tenant
// domains must be a real navigation, never an in-app route change. The
// embedding application supplies the implementation.
type Navigator interface {
	Navigate(target string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(target string) error

func (f NavigatorFunc) Navigate(target string) error {
	return f(target)
}

// RedirectOptions carries the deployment conventions applied when building a
// cross-tenant URL.
type RedirectOptions struct {
	// MainDomain is the host's main domain under which tenant subdomains live.
	MainDomain string
	// Environment decides scheme and port conventions: development keeps
	// plain http and the current port, anything else gets https with the
	// default port.
	Environment string
}

// RedirectTarget compares the tenant's domain against the current browsing
// host and returns the URL to navigate to, or "" when the hosts already
// match and no navigation is needed. current may include a port.
func RedirectTarget(tenant *Tenant, current string, opts RedirectOptions) string {
	target := tenant.Host(opts.MainDomain)
	if target == "" {
		return ""
	}

	currentHost, currentPort := splitHostPort(current)
	if strings.EqualFold(currentHost, target) {
		return ""
	}

	u := url.URL{Scheme: "https", Host: target}
	if isDevelopment(opts.Environment) {
		u.Scheme = "http"
		if currentPort != "" {
			u.Host = net.JoinHostPort(target, currentPort)
		}
	}
	return u.String()
}

func isDevelopment(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// splitHostPort tolerates bare hostnames, unlike net.SplitHostPort.
func splitHostPort(host string) (string, string) {
	if h, p, err := net.SplitHostPort(host); err == nil {
		return h, p
	}
	return host, ""
}
