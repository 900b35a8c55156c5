package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models pressflow.yml.
type Config struct {
	Site struct {
		ID               string `yaml:"id"`
		BaseURL          string `yaml:"base_url"`
		Timezone         string `yaml:"timezone"`
		DevDomain        string `yaml:"dev_domain"`
		TitlePlaceholder string `yaml:"title_placeholder"`
	} `yaml:"site"`
	Types struct {
		Supported    []string            `yaml:"supported"`
		Requirements map[string]TypeSpec `yaml:"requirements"`
		Messages     map[string]string   `yaml:"messages"`
	} `yaml:"types"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		NonceTTL  string `yaml:"nonce_ttl"`
	} `yaml:"auth"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// TypeSpec is the per-content-type requirement table.
type TypeSpec struct {
	RequiredPrimary    map[string]FieldSpec `yaml:"required_primary"`
	OptionalPrimary    map[string]FieldSpec `yaml:"optional_primary"`
	RequiredMeta       map[string]FieldSpec `yaml:"required_meta"`
	OptionalMeta       map[string]FieldSpec `yaml:"optional_meta"`
	RequiredGroups     map[string]GroupSpec `yaml:"required_groups"`
	OptionalGroups     map[string]GroupSpec `yaml:"optional_groups"`
	RequiredTaxonomies map[string]FieldSpec `yaml:"required_taxonomies"`
	OptionalTaxonomies map[string]FieldSpec `yaml:"optional_taxonomies"`
}

type FieldSpec struct {
	Label     string `yaml:"label"`
	ShowValue bool   `yaml:"show_value"`
	HasValue  string `yaml:"has_value"`
	NoValue   string `yaml:"no_value"`
}

type GroupSpec struct {
	Label     string   `yaml:"label"`
	Keys      []string `yaml:"keys"`
	ShowValue bool     `yaml:"show_value"`
	HasValue  string   `yaml:"has_value"`
	NoValue   string   `yaml:"no_value"`
}

type Webhook struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Site.ID == "" {
		return fmt.Errorf("config.site.id is required")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("config.site.base_url is required")
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			return fmt.Errorf("config.site.timezone: %w", err)
		}
	}
	if len(c.Types.Supported) == 0 {
		return fmt.Errorf("config.types.supported must list at least one content type")
	}
	supported := make(map[string]bool, len(c.Types.Supported))
	for _, t := range c.Types.Supported {
		if t == "" {
			return fmt.Errorf("config.types.supported contains empty type")
		}
		supported[t] = true
	}
	for typ, spec := range c.Types.Requirements {
		if !supported[typ] {
			return fmt.Errorf("requirements defined for unsupported type %s", typ)
		}
		for _, groups := range []map[string]GroupSpec{spec.RequiredGroups, spec.OptionalGroups} {
			for name, g := range groups {
				if len(g.Keys) == 0 {
					return fmt.Errorf("group %s for type %s has no member keys", name, typ)
				}
				for _, k := range g.Keys {
					if k == "" {
						return fmt.Errorf("group %s for type %s has an empty member key", name, typ)
					}
				}
			}
		}
	}
	if c.Auth.NonceTTL != "" {
		if _, err := time.ParseDuration(c.Auth.NonceTTL); err != nil {
			return fmt.Errorf("config.auth.nonce_ttl: %w", err)
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Location resolves the site timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Site.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NonceTTL resolves the publish nonce lifetime, defaulting to 12h.
func (c *Config) NonceTTL() time.Duration {
	if c.Auth.NonceTTL == "" {
		return 12 * time.Hour
	}
	d, err := time.ParseDuration(c.Auth.NonceTTL)
	if err != nil {
		return 12 * time.Hour
	}
	return d
}

// TitlePlaceholder returns the unset-title sentinel.
func (c *Config) TitlePlaceholder() string {
	if c.Site.TitlePlaceholder == "" {
		return "Auto Draft"
	}
	return c.Site.TitlePlaceholder
}

// Message returns a named outcome message, falling back to defaults.
func (c *Config) Message(key string) string {
	if v, ok := c.Types.Messages[key]; ok && v != "" {
		return v
	}
	return defaultMessages[key]
}

var defaultMessages = map[string]string{
	"publish_success":  "Post published!",
	"schedule_success": "Post scheduled!",
	"publish_fail":     "Sorry, this post could not be published",
	"not_allowed":      "Sorry, the current user is not allowed to publish posts",
	"not_found":        "Sorry, no post to publish was found.",
	"already_done":     "Looks like this post has already been published or scheduled",
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pressflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(siteID string) string {
	return fmt.Sprintf(defaultTemplate, siteID)
}

// Default returns the default Config struct for a site.
func Default(siteID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, siteID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  id: %s
  base_url: http://localhost:8080
  timezone: UTC
  dev_domain: ""
  title_placeholder: "Auto Draft"

types:
  supported: [post, page]

  requirements:
    post:
      required_primary:
        title:
          label: Title
          show_value: true
          has_value: "Title is set"
          no_value: "Title is missing"
        content:
          label: Content
          show_value: true
          has_value: "Content is set"
          no_value: "Content is missing"
      required_taxonomies:
        category:
          label: Categories
          has_value: "At least one category is set"
          no_value: "No category is set"
      optional_primary:
        excerpt:
          label: Excerpt
          show_value: true
    page:
      required_primary:
        title:
          label: Title
          show_value: true
          has_value: "Title is set"
          no_value: "Title is missing"
        content:
          label: Content
          show_value: true
          has_value: "Content is set"
          no_value: "Content is missing"

  messages:
    publish_success: "Post published!"
    schedule_success: "Post scheduled!"
    publish_fail: "Sorry, this post could not be published"

auth:
  jwt_secret: ""
  nonce_ttl: 12h

webhooks: []
`
