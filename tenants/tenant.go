// Package tenants models the multi-tenant application configuration and the
// rules for keeping the client on the resolved tenant's domain.
package tenants

// Tenant is an isolated customer organization context, optionally bound to a
// subdomain of the host's main domain or to a fully custom domain.
type Tenant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Subdomain    string `json:"subdomain"`
	CustomDomain string `json:"custom_domain,omitempty"`
	IsActive     bool   `json:"is_active"`
}

// Host returns the hostname the tenant is served from: the custom domain when
// one is bound, otherwise the subdomain under mainDomain. With no main domain
// configured the bare subdomain is returned.
func (t *Tenant) Host(mainDomain string) string {
	if t == nil {
		return ""
	}
	if t.CustomDomain != "" {
		return t.CustomDomain
	}
	if t.Subdomain == "" {
		return ""
	}
	if mainDomain == "" {
		return t.Subdomain
	}
	return t.Subdomain + "." + mainDomain
}

// MultiTenancyStrategy describes how the backend distinguishes tenants.
type MultiTenancyStrategy string

const (
	StrategyNone   MultiTenancyStrategy = "none"
	StrategyDomain MultiTenancyStrategy = "domain"
	StrategyHeader MultiTenancyStrategy = "header"
)

// AppConfig is the backend-provided application configuration. It is resolved
// as a whole; the current tenant is never fetched independently.
type AppConfig struct {
	IsMultiTenantEnabled bool                 `json:"is_multi_tenant_enabled"`
	MultiTenancyStrategy MultiTenancyStrategy `json:"multi_tenancy_strategy,omitempty"`
	CurrentTenant        *Tenant              `json:"current_tenant,omitempty"`
	HostMainDomain       string               `json:"host_main_domain,omitempty"`
	Features             map[string]bool      `json:"features,omitempty"`
}

// ShouldShowTenantSelection reports whether the client must prompt for a
// tenant: multi-tenancy is enabled but no tenant could be resolved.
func (c *AppConfig) ShouldShowTenantSelection() bool {
	if c == nil {
		return false
	}
	return c.IsMultiTenantEnabled && c.CurrentTenant == nil
}

// FeatureEnabled reports whether a named feature flag is on.
func (c *AppConfig) FeatureEnabled(name string) bool {
	if c == nil {
		return false
	}
	return c.Features[name]
}
