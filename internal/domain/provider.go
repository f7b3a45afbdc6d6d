package domain

// AuthMethod selects how users of a context container sign in.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodSSO      AuthMethod = "sso"
)

// ContextContainer is an entity that scopes other data: a Tenant or a Team.
type ContextContainer interface {
	ContainerID() string
	ContainerSlug() string
	ContainerName() string
}

// IdentityProviderOwner is a context container that carries sign-in policy.
type IdentityProviderOwner interface {
	IdentityProvider() ProviderSettings
}

// ProviderSettings holds the identity provider configuration attached 1:1
// to a context container.
type ProviderSettings struct {
	AuthMethod        AuthMethod
	SSOProvider       string
	SSOClientID       string
	SSOClientSecret   string
	SSOTenantID       string
	AutoProvision     bool
	AutoProvisionRole string
}

// RequiresSSO reports whether password login is deflected to SSO.
func (p ProviderSettings) RequiresSSO() bool {
	return p.AuthMethod == AuthMethodSSO
}

// HasSSOConfigured reports whether all provider credentials are present.
// A container can demand SSO without being usable yet; callers must treat
// that combination as a configuration error, not fall back to passwords.
func (p ProviderSettings) HasSSOConfigured() bool {
	return p.SSOClientID != "" && p.SSOClientSecret != "" && p.SSOTenantID != ""
}

// OAuthConfig describes a configured SSO provider for the OAuth client.
type OAuthConfig struct {
	Provider     string
	ClientID     string
	ClientSecret string
	TenantID     string
}

// SSOConfig returns the provider OAuth configuration, or nil when the
// provider is not fully configured.
func (p ProviderSettings) SSOConfig() *OAuthConfig {
	if !p.HasSSOConfigured() {
		return nil
	}
	return &OAuthConfig{
		Provider:     p.SSOProvider,
		ClientID:     p.SSOClientID,
		ClientSecret: p.SSOClientSecret,
		TenantID:     p.SSOTenantID,
	}
}

// AllowsAutoProvision reports whether unknown SSO users get an account and
// membership created on first login.
func (p ProviderSettings) AllowsAutoProvision() bool { return p.AutoProvision }

// ProvisionRole returns the role granted to auto-provisioned members,
// defaulting to "member".
func (p ProviderSettings) ProvisionRole() string {
	if p.AutoProvisionRole == "" {
		return "member"
	}
	return p.AutoProvisionRole
}
