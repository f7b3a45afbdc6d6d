package config

import (
	"strings"
	"time"
)

// Config holds runtime configuration for the identity service.
type Config struct {
	Environment string
	Addr        string
	DatabaseURL string
	JWTSecret   string

	// SecretsKey encrypts SSO client secrets at rest.
	SecretsKey string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Feature toggles.
	TeamsEnabled            bool
	TenantsEnabled          bool
	TenantRequired          bool
	RolesEnabled            bool
	DomainFederationEnabled bool
	MagicAuthEnabled        bool

	TenantHeader string

	// Login throttle policy. Zero disables the corresponding tier.
	SoftFailAttempts  int
	HardFailAttempts  int
	LoginBlockMinutes int

	// Password policy. Zero disables the corresponding rule.
	PasswordMinLength    int
	PasswordMaxLength    int
	CombinationTypes     []string
	OldPasswordCount     int
	CheckUserColumns     []string
	PasswordSoftDays     int
	PasswordHardDays     int
	ReservedSlugs        []string
	RequestRateLimit     int
	RequestRateWindow    time.Duration
	LoginAttemptLogLimit int
}

// LoadConfig constructs a Config from environment variables.
func LoadConfig() Config {
	return Config{
		Environment: GetString("APP_ENV", "development"),
		Addr:        GetString("NEEV_ADDR", ":4000"),
		DatabaseURL: GetString("DATABASE_URL", "postgres://neev:neev@db:5432/neev?sslmode=disable"),
		JWTSecret:   GetString("JWT_SECRET", "supersecuresecret"),
		SecretsKey:  GetString("SSO_SECRETS_KEY", "supersecuresecret"),

		AccessTokenTTL:  time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL: time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,

		RedisAddr:     GetString("REDIS_ADDR", ""),
		RedisPassword: GetString("REDIS_PASSWORD", ""),
		RedisDB:       GetInt("REDIS_DB", 0),

		TeamsEnabled:            GetBool("FEATURE_TEAMS", true),
		TenantsEnabled:          GetBool("FEATURE_TENANTS", true),
		TenantRequired:          GetBool("TENANT_REQUIRED", false),
		RolesEnabled:            GetBool("FEATURE_ROLES", true),
		DomainFederationEnabled: GetBool("FEATURE_DOMAIN_FEDERATION", false),
		MagicAuthEnabled:        GetBool("FEATURE_MAGICAUTH", false),

		TenantHeader: GetString("TENANT_HEADER", "X-Tenant"),

		SoftFailAttempts:  GetInt("SOFT_FAIL_ATTEMPTS", 5),
		HardFailAttempts:  GetInt("HARD_FAIL_ATTEMPTS", 20),
		LoginBlockMinutes: GetInt("LOGIN_BLOCK_MINUTES", 5),

		PasswordMinLength:    GetInt("PASSWORD_MIN_LENGTH", 8),
		PasswordMaxLength:    GetInt("PASSWORD_MAX_LENGTH", 64),
		CombinationTypes:     GetStrings("PASSWORD_COMBINATIONS", "alphabets,numbers"),
		OldPasswordCount:     GetInt("PASSWORD_OLD_COUNT", 3),
		CheckUserColumns:     GetStrings("PASSWORD_CHECK_COLUMNS", "name,email"),
		PasswordSoftDays:     GetInt("PASSWORD_SOFT_DAYS", 0),
		PasswordHardDays:     GetInt("PASSWORD_HARD_DAYS", 0),
		ReservedSlugs:        GetStrings("RESERVED_SLUGS", "admin,api,www,app,team"),
		RequestRateLimit:     GetInt("REQUEST_RATE_LIMIT", 60),
		RequestRateWindow:    time.Duration(GetInt("REQUEST_RATE_WINDOW_SECONDS", 60)) * time.Second,
		LoginAttemptLogLimit: GetInt("LOGIN_ATTEMPT_LOG_LIMIT", 50),
	}
}

// GetStrings retrieves a comma-separated environment variable as a slice.
// Empty items are dropped; an empty value yields nil, disabling the rule
// that consumes it.
func GetStrings(key, fallback string) []string {
	raw := GetString(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
