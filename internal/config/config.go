package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvSecretKey = "ROOM_API_SECRET_KEY"
	EnvRoomURL   = "ROOM_URL"
	EnvAPIHost   = "ROOM_API_HOST"
	EnvAPIPort   = "ROOM_API_PORT"

	DefaultAPIHost = "room-api.workadventu.re"
	DefaultAPIPort = 443
)

// NotifierConfig holds the connection parameters of the room automation API.
type NotifierConfig struct {
	SecretKey string
	RoomURL   string
	APIHost   string
	APIPort   int
}

// UseTLS mirrors the room API client: port 443 or an explicit https:// host.
func (c *NotifierConfig) UseTLS() bool {
	return c.APIPort == 443 || strings.HasPrefix(c.APIHost, "https://")
}

// Address is the host:port pair to dial, without any URL scheme.
func (c *NotifierConfig) Address() string {
	host := strings.TrimPrefix(strings.TrimPrefix(c.APIHost, "https://"), "http://")
	host = strings.TrimSuffix(host, "/")
	return fmt.Sprintf("%s:%d", host, c.APIPort)
}

// MaskedSecretKey returns the key with everything but the last four characters hidden.
func (c *NotifierConfig) MaskedSecretKey() string {
	if len(c.SecretKey) <= 4 {
		return strings.Repeat("*", len(c.SecretKey))
	}
	return strings.Repeat("*", len(c.SecretKey)-4) + c.SecretKey[len(c.SecretKey)-4:]
}

// MissingEnvError reports a required environment variable that is not set.
type MissingEnvError struct {
	Name string
	Hint string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("%s environment variable is required", e.Name)
}

// LoadNotifierConfig reads the notifier settings from the process environment.
func LoadNotifierConfig() (*NotifierConfig, error) {
	v := viper.New()
	v.SetDefault(EnvAPIHost, DefaultAPIHost)
	v.SetDefault(EnvAPIPort, strconv.Itoa(DefaultAPIPort))
	v.AutomaticEnv()

	cfg := &NotifierConfig{
		SecretKey: strings.TrimSpace(v.GetString(EnvSecretKey)),
		RoomURL:   strings.TrimSpace(v.GetString(EnvRoomURL)),
		APIHost:   strings.TrimSpace(v.GetString(EnvAPIHost)),
	}

	if cfg.SecretKey == "" {
		return nil, &MissingEnvError{
			Name: EnvSecretKey,
			Hint: fmt.Sprintf("Set it with: export %s='your-api-key'", EnvSecretKey),
		}
	}
	if cfg.RoomURL == "" {
		return nil, &MissingEnvError{
			Name: EnvRoomURL,
			Hint: fmt.Sprintf("Set it with: export %s='https://play.workadventu.re/@/org/world/room'", EnvRoomURL),
		}
	}
	if cfg.APIHost == "" {
		cfg.APIHost = DefaultAPIHost
	}

	portStr := strings.TrimSpace(v.GetString(EnvAPIPort))
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid %s value %q: must be a port number", EnvAPIPort, portStr)
	}
	cfg.APIPort = port

	return cfg, nil
}

// AgentConfig drives the room agent: dashboard zones, alert sound and layer.
type AgentConfig struct {
	Links           []LinkZoneConfig `yaml:"links"`
	Sound           SoundConfig      `yaml:"sound"`
	IncidentLayer   string           `yaml:"incident_layer"`
	ZoneIncidentURL string           `yaml:"zone_incident_url"` // sent when a player walks into the trigger zone
}

// LinkZoneConfig opens URL in a new tab when a player enters Zone.
type LinkZoneConfig struct {
	Zone string `yaml:"zone"`
	URL  string `yaml:"url"`
}

type SoundConfig struct {
	URL    string   `yaml:"url"`
	Volume *float64 `yaml:"volume"`
	Loop   bool     `yaml:"loop"`
}

const (
	DefaultSoundURL      = "sounds/incident-alert.mp3"
	DefaultSoundVolume   = 0.5
	DefaultIncidentLayer = "incident"
	JiraBoardURL         = "https://getlavanda.atlassian.net/jira/software/c/projects/BAS/boards/155"
	GrafanaDashboardURL  = "https://grafana.lavanda.app/d/booking-creations-overview/booking-creations-overview?orgId=1&from=now-24h&to=now&timezone=browser&refresh=30s"
)

// DefaultAgentConfig is the configuration used when no file is given.
func DefaultAgentConfig() *AgentConfig {
	cfg := &AgentConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// Clone returns a deep copy, so the copy can be defaulted or edited without
// touching cfg.
func (cfg *AgentConfig) Clone() *AgentConfig {
	c := *cfg
	if cfg.Links != nil {
		c.Links = append([]LinkZoneConfig(nil), cfg.Links...)
	}
	if cfg.Sound.Volume != nil {
		vol := *cfg.Sound.Volume
		c.Sound.Volume = &vol
	}
	return &c
}

// ApplyDefaults fills every unset field.
func (cfg *AgentConfig) ApplyDefaults() {
	if cfg.Links == nil {
		cfg.Links = []LinkZoneConfig{
			{Zone: "argosJiraBoard", URL: JiraBoardURL},
			{Zone: "openGrafana", URL: GrafanaDashboardURL},
		}
	}
	if strings.TrimSpace(cfg.Sound.URL) == "" {
		cfg.Sound.URL = DefaultSoundURL
	}
	if cfg.Sound.Volume == nil {
		vol := DefaultSoundVolume
		cfg.Sound.Volume = &vol
	}
	if strings.TrimSpace(cfg.IncidentLayer) == "" {
		cfg.IncidentLayer = DefaultIncidentLayer
	}
}

// LoadAgentConfig reads and validates a room agent YAML file.
// An empty path yields DefaultAgentConfig.
func LoadAgentConfig(filePath string) (*AgentConfig, error) {
	if filePath == "" {
		return DefaultAgentConfig(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML from %s: %w", filePath, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filePath, err)
	}
	return &cfg, nil
}

// Validate checks the link zones and sound settings. Unset fields are
// accepted; ApplyDefaults fills them.
func (cfg *AgentConfig) Validate() error {
	seen := make(map[string]bool)
	for i, link := range cfg.Links {
		if link.Zone == "" {
			return fmt.Errorf("link at index %d missing zone", i)
		}
		if seen[link.Zone] {
			return fmt.Errorf("duplicate link zone '%s'", link.Zone)
		}
		seen[link.Zone] = true
		if err := checkAbsoluteURL(link.URL); err != nil {
			return fmt.Errorf("link zone '%s': %w", link.Zone, err)
		}
	}
	if v := cfg.Sound.Volume; v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("sound volume %.2f out of range [0, 1]", *v)
	}
	if cfg.ZoneIncidentURL != "" {
		if err := checkAbsoluteURL(cfg.ZoneIncidentURL); err != nil {
			return fmt.Errorf("zone_incident_url: %w", err)
		}
	}
	return nil
}

func checkAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("url %q must be an absolute http(s) URL", raw)
	}
	return nil
}
