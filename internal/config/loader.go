package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"media": {"youtube", "llm"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.WSPath != "" && !strings.HasPrefix(cfg.Server.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path %q must start with /", cfg.Server.WSPath))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("media", cfg.Providers.Media.Name)
	for i, e := range cfg.Providers.LLMFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", e.Name)
	}
	for i, e := range cfg.Providers.MediaFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.media_fallbacks[%d].name is required", i))
		}
		validateProviderName("media", e.Name)
	}
	if cfg.Providers.Media.Name == "" {
		if len(cfg.Providers.MediaFallbacks) > 0 {
			errs = append(errs, errors.New("providers.media_fallbacks requires providers.media"))
		} else {
			slog.Warn("no media provider configured; reference videos will not be searched")
		}
	}

	// Pipeline
	p := cfg.Pipeline
	if p.DecisionTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.decision_timeout %s must not be negative", p.DecisionTimeout))
	}
	if p.GenerationTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.generation_timeout %s must not be negative", p.GenerationTimeout))
	}
	if p.ReferenceLimit < 0 {
		errs = append(errs, fmt.Errorf("pipeline.reference_limit %d must not be negative", p.ReferenceLimit))
	}
	if p.FallbackVideoLimit < 0 {
		errs = append(errs, fmt.Errorf("pipeline.fallback_video_limit %d must not be negative", p.FallbackVideoLimit))
	}
	if p.QuizQuestions < 0 || p.QuizQuestions > 20 {
		errs = append(errs, fmt.Errorf("pipeline.quiz_questions %d is out of range [1, 20]", p.QuizQuestions))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.temperature %.2f is out of range [0, 2]", p.Temperature))
	}

	// Cache
	if cfg.Cache.MaxEdits < 0 {
		errs = append(errs, fmt.Errorf("cache.max_edits %d must not be negative", cfg.Cache.MaxEdits))
	}

	// Storage
	if cfg.Storage.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("storage.redis_db %d must not be negative", cfg.Storage.RedisDB))
	}
	if cfg.Storage.LectureTTL < 0 {
		errs = append(errs, fmt.Errorf("storage.lecture_ttl %s must not be negative", cfg.Storage.LectureTTL))
	}
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %g must be within [0, 1]", r))
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; lectures will not be persisted and the simulation cache is in-memory")
	}
	if cfg.Storage.RedisAddr == "" {
		slog.Warn("storage.redis_addr is empty; lecture state is kept in-process and not shared between instances")
	} else if cfg.Storage.LectureTTL == 0 {
		slog.Warn("storage.lecture_ttl is zero; lecture state in Redis never expires")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
