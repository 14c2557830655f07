// Package config loads process configuration with viper: a YAML/TOML/JSON
// file plus environment variable overrides, decoded into typed structs
// with the same defaults each component applies on its own when zero.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is every tunable this process exposes.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	SampleRate int `mapstructure:"sample_rate"`

	Transport TransportConfig `mapstructure:"transport"`
	VAD       VADConfig       `mapstructure:"vad"`
	Ducking   DuckingConfig   `mapstructure:"ducking"`
	BargeIn   BargeInConfig   `mapstructure:"barge_in"`
	Router    RouterConfig    `mapstructure:"router"`
	Vendors   VendorsConfig   `mapstructure:"vendors"`
	Telephony TelephonyConfig `mapstructure:"telephony"`
	Privacy   PrivacyConfig   `mapstructure:"privacy"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// TransportConfig configures the client-facing WebSocket listener.
type TransportConfig struct {
	ServerAddr     string `mapstructure:"server_addr"`
	Path           string `mapstructure:"path"`
	AllowAnyOrigin bool   `mapstructure:"allow_any_origin"`
}

// VADConfig mirrors internal/vad.Config.
type VADConfig struct {
	FrameMS                 int     `mapstructure:"frame_ms"`
	Adaptive                bool    `mapstructure:"adaptive"`
	ConfidenceGating        bool    `mapstructure:"confidence_gating"`
	SpectralEnabled         bool    `mapstructure:"spectral_enabled"`
	Alpha                   float64 `mapstructure:"alpha"`
	SpeechFramesRequiredMS  int     `mapstructure:"speech_frames_required_ms"`
	SilenceFramesRequiredMS int     `mapstructure:"silence_frames_required_ms"`
}

// DuckingConfig holds ducking profile, ramp and curve settings. Sessions do
// not read it: their ducking requests use the medium profile, the
// processor's default ramp durations and the exponential curve.
type DuckingConfig struct {
	Profile    string  `mapstructure:"profile"` // soft|medium|hard
	CustomDB   float64 `mapstructure:"custom_db"`
	RampUpMS   int     `mapstructure:"ramp_up_ms"`
	RampDownMS int     `mapstructure:"ramp_down_ms"`
	Curve      string  `mapstructure:"curve"` // linear|exponential|logarithmic
}

// BargeInConfig mirrors internal/bargein.Config.
type BargeInConfig struct {
	Mode                    string `mapstructure:"mode"`
	GracePeriodMs           int    `mapstructure:"grace_period_ms"`
	SentenceCompletionMaxMs int    `mapstructure:"sentence_completion_max_ms"`
	DuckingEnabled          bool   `mapstructure:"ducking_enabled"`
	DuckingLeadTimeMs       int    `mapstructure:"ducking_lead_time_ms"`
}

// RouterConfig mirrors internal/router.Aliases.
type RouterConfig struct {
	HostAlias  string `mapstructure:"host_alias"`
	GuestAlias string `mapstructure:"guest_alias"`
	HumanAlias string `mapstructure:"human_alias"`
}

// VendorConfig is one adapter's provider selection and credentials.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

// VendorsConfig selects the STT/TTS/LLM adapter implementations.
type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

// TelephonyConfig configures the optional Twilio dial-out bridge.
type TelephonyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	PublicURL  string `mapstructure:"public_url"`
	VoicePath  string `mapstructure:"voice_path"`
}

// PrivacyConfig toggles caption/log redaction.
type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// StorageConfig locates persisted state: recordings and event logs, one
// subtree per episode ID.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads path (any format viper supports) with environment variable
// overrides (ORB_-prefixed, underscore-nested) applied on top, and
// defaults filled in for anything unset.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("orb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("sample_rate", 48000)

	v.SetDefault("transport.server_addr", ":8080")
	v.SetDefault("transport.path", "/ws")
	v.SetDefault("transport.allow_any_origin", true)

	v.SetDefault("vad.frame_ms", 20)
	v.SetDefault("vad.adaptive", true)
	v.SetDefault("vad.confidence_gating", true)
	v.SetDefault("vad.spectral_enabled", true)
	v.SetDefault("vad.alpha", 0.01)
	v.SetDefault("vad.speech_frames_required_ms", 120)
	v.SetDefault("vad.silence_frames_required_ms", 220)

	v.SetDefault("ducking.profile", "medium")
	v.SetDefault("ducking.ramp_up_ms", 50)
	v.SetDefault("ducking.ramp_down_ms", 150)
	v.SetDefault("ducking.curve", "exponential")

	v.SetDefault("barge_in.mode", "graceful")
	v.SetDefault("barge_in.grace_period_ms", 300)
	v.SetDefault("barge_in.sentence_completion_max_ms", 2000)
	v.SetDefault("barge_in.ducking_enabled", true)
	v.SetDefault("barge_in.ducking_lead_time_ms", 150)

	v.SetDefault("router.host_alias", "claude")
	v.SetDefault("router.guest_alias", "guest")
	v.SetDefault("router.human_alias", "basil")

	v.SetDefault("vendors.stt.provider", "mock")
	v.SetDefault("vendors.tts.provider", "mock")
	v.SetDefault("vendors.llm.provider", "mock")

	v.SetDefault("telephony.enabled", false)
	v.SetDefault("telephony.voice_path", "/twilio/voice")

	v.SetDefault("privacy.redact_pii", true)

	v.SetDefault("storage.dir", "./data")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Storage.Dir) == "" {
		return fmt.Errorf("storage.dir is required")
	}
	return nil
}
