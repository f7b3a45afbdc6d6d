package domain

import "time"

// Team represents a collaborative group scoped under a tenant.
type Team struct {
	ID             string
	TenantID       string
	Slug           string
	DisplayName    string
	OwnerID        string
	Domain         string
	DomainVerified bool
	Provider       ProviderSettings
	CreatedAt      time.Time
}

// ContainerID returns the team identifier.
func (t *Team) ContainerID() string { return t.ID }

// ContainerSlug returns the team slug.
func (t *Team) ContainerSlug() string { return t.Slug }

// ContainerName returns the team display name.
func (t *Team) ContainerName() string { return t.DisplayName }

// IdentityProvider returns the team's identity provider settings.
func (t *Team) IdentityProvider() ProviderSettings { return t.Provider }

var _ ContextContainer = (*Team)(nil)
var _ IdentityProviderOwner = (*Team)(nil)
