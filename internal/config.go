package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gobwas/glob"

	"github.com/kernpunkt/llm-mem/internal/audit"
	"github.com/kernpunkt/llm-mem/internal/memservice"
	"github.com/kernpunkt/llm-mem/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig         `yaml:"app"`
	Store     StoreConfig               `yaml:"store"`
	Index     IndexConfig               `yaml:"index"`
	Auth      AuthConfig                `yaml:"auth"`
	Audit     AuditConfig               `yaml:"audit"`
	Templates map[string]map[string]any `yaml:"templates"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	return validateTemplates(c.Templates)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the path to the memory directory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig holds the search index location.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// AuditConfig tunes the consistency audit.
type AuditConfig struct {
	StaleAfterDays    int      `yaml:"stale_after_days"`
	ExcludeCategories []string `yaml:"exclude_categories"`
}

// Validate validates the audit configuration.
func (c *AuditConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StaleAfterDays, validation.Min(0)),
		validation.Field(&c.ExcludeCategories, validation.Each(validation.Required, validation.By(compiles))),
	)
}

// Options converts the section into audit options.
func (c *AuditConfig) Options() audit.Options {
	return audit.Options{
		StaleAfterDays:    c.StaleAfterDays,
		ExcludeCategories: c.ExcludeCategories,
	}
}

func compiles(v any) error {
	pattern, _ := v.(string)
	if _, err := glob.Compile(pattern); err != nil {
		return fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	return nil
}

func validateTemplates(templates map[string]map[string]any) error {
	var errs []error
	for _, category := range slices.Sorted(maps.Keys(templates)) {
		if strings.TrimSpace(category) == "" {
			errs = append(errs, errors.New("templates: empty category name"))
			continue
		}
		if bad := models.ProtectedCollisions(templates[category]); len(bad) > 0 {
			errs = append(errs, fmt.Errorf("templates: %s: protected fields %s", category, strings.Join(bad, ", ")))
		}
	}
	return errors.Join(errs...)
}

// TemplateSet converts the templates section for the memory service.
func (c *Config) TemplateSet() memservice.Templates {
	return memservice.Templates(c.Templates)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./memories",
		},
		Index: IndexConfig{
			Path: "./llm-mem.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Audit: AuditConfig{
			StaleAfterDays: 90,
		},
	}
}
