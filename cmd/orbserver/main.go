// Command orbserver is the process entrypoint: it loads configuration,
// wires the transport and vendor adapters the config selects, and runs the
// orchestrator until signalled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/orbtalk/orb/internal/adapters/llm"
	llmmock "github.com/orbtalk/orb/internal/adapters/llm/mock"
	"github.com/orbtalk/orb/internal/adapters/llm/openai"
	"github.com/orbtalk/orb/internal/adapters/stt"
	"github.com/orbtalk/orb/internal/adapters/stt/deepgram"
	sttmock "github.com/orbtalk/orb/internal/adapters/stt/mock"
	"github.com/orbtalk/orb/internal/adapters/telephony"
	"github.com/orbtalk/orb/internal/adapters/tts"
	"github.com/orbtalk/orb/internal/adapters/tts/elevenlabs"
	ttsmock "github.com/orbtalk/orb/internal/adapters/tts/mock"
	"github.com/orbtalk/orb/internal/config"
	"github.com/orbtalk/orb/internal/configutil"
	"github.com/orbtalk/orb/internal/logging"
	"github.com/orbtalk/orb/internal/orchestrator"
	"github.com/orbtalk/orb/internal/redact"
	"github.com/orbtalk/orb/internal/resilience"
	"github.com/orbtalk/orb/internal/runner"
	"github.com/orbtalk/orb/internal/session"
	"github.com/orbtalk/orb/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "config.local.yaml", "")
	dialTo := flag.String("dial_to", "", "destination number for outbound call")
	dialFrom := flag.String("dial_from", "", "caller ID for outbound call")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log := logging.Init(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	transport := ws.New(ws.Config{
		ServerAddr:     cfg.Transport.ServerAddr,
		Path:           cfg.Transport.Path,
		AllowAnyOrigin: cfg.Transport.AllowAnyOrigin,
	}, log)

	orch := orchestrator.New(cfg, transport, log)

	sttPort, err := buildSTT(cfg, orch.STTCallbacks(), log)
	if err != nil {
		log.Error("stt_unavailable", "err", err)
	} else {
		orch.SetSTT(sttPort)
	}

	for _, speaker := range []session.SpeakerID{session.Host, session.Guest} {
		ttsPort, err := buildTTS(cfg, speaker, orch.TTSCallbacks(speaker), log)
		if err != nil {
			log.Error("tts_unavailable", "speaker", speaker, "err", err)
			continue
		}
		orch.SetTTS(speaker, ttsPort)
	}

	llmPort, err := buildLLM(cfg)
	if err != nil {
		log.Error("llm_unavailable", "err", err)
	} else {
		orch.SetLLM(llmPort)
	}

	var dialer *telephony.Dialer
	if cfg.Telephony.Enabled {
		dialer = telephony.NewDialer(telephony.Config{
			AccountSID: cfg.Telephony.AccountSID,
			AuthToken:  cfg.Telephony.AuthToken,
			PublicURL:  cfg.Telephony.PublicURL,
			VoicePath:  cfg.Telephony.VoicePath,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lr := runner.NewLifecycleRunner(orch, runner.Hooks{
		OnStart: func() {
			if err := transport.Start(ctx); err != nil {
				log.Error("transport_start_failed", "err", err)
				return
			}
			go func() { _ = orch.Run(ctx) }()
			printReady(cfg)
			if dialer != nil && *dialTo != "" && *dialFrom != "" {
				sid, err := dialer.Dial(ctx, *dialTo, *dialFrom, telephony.DialOptions{})
				if err != nil {
					log.Error("outbound_dial_failed", "err", err)
				} else {
					log.Info("outbound_dial_started", "call_sid", sid)
				}
			}
		},
		OnStop: func() {
			_ = transport.Stop()
		},
	}, 0)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = lr.Stop()
	}()

	if err := lr.Run(ctx); err != nil {
		log.Error("shutdown_incomplete", "err", err)
		os.Exit(1)
	}
}

func printReady(cfg config.Config) {
	out := os.Stdout
	if isatty.IsTerminal(out.Fd()) {
		fmt.Fprintln(colorable.NewColorable(out), color.GreenString("orb server listening on %s%s", cfg.Transport.ServerAddr, cfg.Transport.Path))
		return
	}
	fmt.Fprintf(out, "orb server listening on %s%s\n", cfg.Transport.ServerAddr, cfg.Transport.Path)
}

func buildSTT(cfg config.Config, cb stt.Callbacks, log *slog.Logger) (stt.Port, error) {
	switch strings.ToLower(cfg.Vendors.STT.Provider) {
	case "deepgram":
		if err := configutil.ValidateSettings(cfg.Vendors.STT.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "encoding", "interim", "vad_events"},
		}); err != nil {
			return nil, fmt.Errorf("vendors.stt.settings: %w", err)
		}
		var settings struct {
			APIKey    string `mapstructure:"api_key"`
			Model     string `mapstructure:"model"`
			Language  string `mapstructure:"language"`
			Encoding  string `mapstructure:"encoding"`
			Interim   bool   `mapstructure:"interim"`
			VADEvents bool   `mapstructure:"vad_events"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &settings); err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:    settings.APIKey,
			Model:     settings.Model,
			Encoding:  settings.Encoding,
			Interim:   settings.Interim,
			VADEvents: settings.VADEvents,
		}, stt.Config{SampleRate: cfg.SampleRate, Language: settings.Language}, cb, log), nil
	case "mock", "":
		var settings struct {
			Transcript string `mapstructure:"transcript"`
		}
		_ = configutil.DecodeSettings(cfg.Vendors.STT.Settings, &settings)
		return sttmock.New(settings.Transcript, cb), nil
	default:
		return nil, fmt.Errorf("unsupported stt provider: %s", cfg.Vendors.STT.Provider)
	}
}

func buildTTS(cfg config.Config, speaker session.SpeakerID, cb tts.Callbacks, log *slog.Logger) (tts.Port, error) {
	ttsCfg := tts.Config{SampleRate: cfg.SampleRate, Channels: 1}
	switch strings.ToLower(cfg.Vendors.TTS.Provider) {
	case "elevenlabs":
		if err := configutil.ValidateSettings(cfg.Vendors.TTS.Settings, configutil.Schema{
			Required:     []string{"api_key"},
			Optional:     []string{"voice_id", "model_id", "output_format"},
			AllowUnknown: true, // per-speaker voice_id_<speaker> overrides
		}); err != nil {
			return nil, fmt.Errorf("vendors.tts.settings: %w", err)
		}
		var settings struct {
			APIKey       string `mapstructure:"api_key"`
			VoiceID      string `mapstructure:"voice_id"`
			ModelID      string `mapstructure:"model_id"`
			OutputFormat string `mapstructure:"output_format"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &settings); err != nil {
			return nil, err
		}
		if v, ok := cfg.Vendors.TTS.Settings["voice_id_"+string(speaker)]; ok {
			if s, ok := v.(string); ok && s != "" {
				settings.VoiceID = s
			}
		}
		if err := configutil.RequireString(settings.VoiceID, "vendors.tts.settings.voice_id"); err != nil {
			return nil, err
		}
		return elevenlabs.New(speaker, elevenlabs.Config{
			APIKey:       settings.APIKey,
			VoiceID:      settings.VoiceID,
			ModelID:      settings.ModelID,
			OutputFormat: settings.OutputFormat,
		}, ttsCfg, cb, log), nil
	case "mock", "":
		return ttsmock.New(speaker, ttsCfg, cb), nil
	default:
		return nil, fmt.Errorf("unsupported tts provider: %s", cfg.Vendors.TTS.Provider)
	}
}

func buildLLM(cfg config.Config) (llm.Port, error) {
	switch strings.ToLower(cfg.Vendors.LLM.Provider) {
	case "openai":
		if err := configutil.ValidateSettings(cfg.Vendors.LLM.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "base_url", "circuit_breaker", "circuit_breaker_threshold", "circuit_breaker_cooldown_seconds", "retry_max_attempts"},
		}); err != nil {
			return nil, fmt.Errorf("vendors.llm.settings: %w", err)
		}
		var settings struct {
			APIKey             string `mapstructure:"api_key"`
			Model              string `mapstructure:"model"`
			BaseURL            string `mapstructure:"base_url"`
			CircuitBreaker     bool   `mapstructure:"circuit_breaker"`
			BreakerThreshold   int    `mapstructure:"circuit_breaker_threshold"`
			BreakerCooldownSec int    `mapstructure:"circuit_breaker_cooldown_seconds"`
			RetryMaxAttempts   int    `mapstructure:"retry_max_attempts"`
		}
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		var breaker *resilience.CircuitBreaker
		if settings.CircuitBreaker {
			breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				Threshold: settings.BreakerThreshold,
				Cooldown:  time.Duration(settings.BreakerCooldownSec) * time.Second,
			})
		}
		var port llm.Port = openai.New(openai.Config{
			APIKey:  settings.APIKey,
			Model:   settings.Model,
			BaseURL: settings.BaseURL,
		}, breaker)
		if settings.RetryMaxAttempts > 0 {
			port = llm.WithRetry(port, llm.RetryConfig{MaxAttempts: settings.RetryMaxAttempts})
		}
		return port, nil
	case "mock", "":
		var settings struct {
			ResponseText string `mapstructure:"response_text"`
		}
		_ = configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings)
		return llmmock.New(settings.ResponseText), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Vendors.LLM.Provider)
	}
}
