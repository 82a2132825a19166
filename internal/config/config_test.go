package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadNotifierConfig(t *testing.T) {
	testCases := []struct {
		name        string
		env         map[string]string
		expected    *NotifierConfig
		missingEnv  string
		errorMsg    string
	}{
		{
			name: "defaults",
			env: map[string]string{
				EnvSecretKey: "secret-1234",
				EnvRoomURL:   "https://play.workadventu.re/@/org/world/room",
			},
			expected: &NotifierConfig{
				SecretKey: "secret-1234",
				RoomURL:   "https://play.workadventu.re/@/org/world/room",
				APIHost:   DefaultAPIHost,
				APIPort:   443,
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				EnvSecretKey: "k",
				EnvRoomURL:   "https://example.com/@/a/b/c",
				EnvAPIHost:   "room-api.workadventure.localhost",
				EnvAPIPort:   "80",
			},
			expected: &NotifierConfig{
				SecretKey: "k",
				RoomURL:   "https://example.com/@/a/b/c",
				APIHost:   "room-api.workadventure.localhost",
				APIPort:   80,
			},
		},
		{
			name:       "missing_secret",
			env:        map[string]string{EnvRoomURL: "https://example.com/room"},
			missingEnv: EnvSecretKey,
		},
		{
			name:       "missing_room",
			env:        map[string]string{EnvSecretKey: "k"},
			missingEnv: EnvRoomURL,
		},
		{
			name: "bad_port",
			env: map[string]string{
				EnvSecretKey: "k",
				EnvRoomURL:   "https://example.com/room",
				EnvAPIPort:   "http",
			},
			errorMsg: "invalid ROOM_API_PORT",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, key := range []string{EnvSecretKey, EnvRoomURL, EnvAPIHost, EnvAPIPort} {
				t.Setenv(key, "")
			}
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			cfg, err := LoadNotifierConfig()
			switch {
			case tc.missingEnv != "":
				var missing *MissingEnvError
				require.ErrorAs(t, err, &missing)
				assert.Equal(t, tc.missingEnv, missing.Name)
				assert.Contains(t, missing.Hint, "export "+tc.missingEnv)
			case tc.errorMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorMsg)
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.expected, cfg)
			}
		})
	}
}

func TestNotifierConfigConnection(t *testing.T) {
	cfg := &NotifierConfig{APIHost: "https://room-api.example.com/", APIPort: 8443, SecretKey: "abcdefgh"}
	assert.True(t, cfg.UseTLS())
	assert.Equal(t, "room-api.example.com:8443", cfg.Address())
	assert.Equal(t, "****efgh", cfg.MaskedSecretKey())

	local := &NotifierConfig{APIHost: "room-api.workadventure.localhost", APIPort: 80, SecretKey: "abc"}
	assert.False(t, local.UseTLS())
	assert.Equal(t, "room-api.workadventure.localhost:80", local.Address())
	assert.Equal(t, "***", local.MaskedSecretKey())
}

func TestLoadAgentConfig(t *testing.T) {
	t.Run("empty_path_defaults", func(t *testing.T) {
		cfg, err := LoadAgentConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultSoundURL, cfg.Sound.URL)
		assert.Equal(t, 0.5, *cfg.Sound.Volume)
		assert.Equal(t, "incident", cfg.IncidentLayer)
		require.Len(t, cfg.Links, 2)
		assert.Equal(t, "argosJiraBoard", cfg.Links[0].Zone)
		assert.Equal(t, "openGrafana", cfg.Links[1].Zone)
	})

	testCases := []struct {
		name        string
		content     string
		expectError bool
		errorMsg    string
		check       func(t *testing.T, cfg *AgentConfig)
	}{
		{
			name: "full_config",
			content: `
incident_layer: "alarm"
zone_incident_url: "https://status.example.com/incidents/1"
sound:
  url: "sounds/siren.ogg"
  volume: 0.8
links:
  - zone: "docs"
    url: "https://docs.example.com"
`,
			check: func(t *testing.T, cfg *AgentConfig) {
				assert.Equal(t, "alarm", cfg.IncidentLayer)
				assert.Equal(t, "sounds/siren.ogg", cfg.Sound.URL)
				assert.Equal(t, 0.8, *cfg.Sound.Volume)
				assert.Equal(t, "https://status.example.com/incidents/1", cfg.ZoneIncidentURL)
				assert.Equal(t, []LinkZoneConfig{{Zone: "docs", URL: "https://docs.example.com"}}, cfg.Links)
			},
		},
		{
			name:    "zero_volume_is_kept",
			content: "sound:\n  volume: 0\n",
			check: func(t *testing.T, cfg *AgentConfig) {
				assert.Equal(t, 0.0, *cfg.Sound.Volume)
				assert.Equal(t, DefaultSoundURL, cfg.Sound.URL)
			},
		},
		{
			name:        "volume_out_of_range",
			content:     "sound:\n  volume: 1.5\n",
			expectError: true,
			errorMsg:    "out of range",
		},
		{
			name:        "relative_link",
			content:     "links:\n  - zone: a\n    url: /relative\n",
			expectError: true,
			errorMsg:    "absolute http(s) URL",
		},
		{
			name:        "duplicate_link_zone",
			content:     "links:\n  - zone: a\n    url: https://a.example.com\n  - zone: a\n    url: https://b.example.com\n",
			expectError: true,
			errorMsg:    "duplicate link zone",
		},
		{
			name:        "invalid_yaml",
			content:     "links: [",
			expectError: true,
			errorMsg:    "failed to unmarshal",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "agent.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))

			cfg, err := LoadAgentConfig(path)
			if tc.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorMsg)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}

	t.Run("missing_file", func(t *testing.T) {
		_, err := LoadAgentConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})
}

func TestAgentConfigValidateWithoutDefaults(t *testing.T) {
	cfg := &AgentConfig{}
	assert.NotPanics(t, func() {
		assert.NoError(t, cfg.Validate())
	})

	loud := 2.0
	cfg.Sound.Volume = &loud
	assert.ErrorContains(t, cfg.Validate(), "out of range")
}

func TestAgentConfigClone(t *testing.T) {
	vol := 0.3
	orig := &AgentConfig{
		Links: []LinkZoneConfig{{Zone: "docs", URL: "https://docs.example.com"}},
		Sound: SoundConfig{Volume: &vol},
	}

	c := orig.Clone()
	c.Links[0].URL = "https://other.example.com"
	*c.Sound.Volume = 0.9
	c.ApplyDefaults()

	assert.Equal(t, "https://docs.example.com", orig.Links[0].URL)
	assert.Equal(t, 0.3, *orig.Sound.Volume)
	assert.Empty(t, orig.Sound.URL)
	assert.Empty(t, orig.IncidentLayer)

	empty := (&AgentConfig{}).Clone()
	assert.Nil(t, empty.Links)
	assert.Nil(t, empty.Sound.Volume)
}
