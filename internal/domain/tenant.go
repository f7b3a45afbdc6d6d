package domain

import "time"

// Tenant represents an isolated top-level customer of the installation.
type Tenant struct {
	ID             string
	Slug           string
	DisplayName    string
	Domain         string
	DomainVerified bool
	Provider       ProviderSettings
	CreatedAt      time.Time
}

// ContainerID returns the tenant identifier.
func (t *Tenant) ContainerID() string { return t.ID }

// ContainerSlug returns the tenant slug.
func (t *Tenant) ContainerSlug() string { return t.Slug }

// ContainerName returns the tenant display name.
func (t *Tenant) ContainerName() string { return t.DisplayName }

// IdentityProvider returns the tenant's identity provider settings.
func (t *Tenant) IdentityProvider() ProviderSettings { return t.Provider }

var _ ContextContainer = (*Tenant)(nil)
var _ IdentityProviderOwner = (*Tenant)(nil)
