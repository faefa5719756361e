package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/extractor"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/negotiation"
	"github.com/yashagarwal4664/Integerated-salary-agent/internal/policy"
)

type Config struct {
	Port     int
	LogLevel string

	AnthropicAPIKey  string
	AnthropicModel   string
	MaxTokens        int
	Temperature      float64
	GeneratorTimeout time.Duration

	NatsURL     string
	NatsToken   string
	DatabaseURL string
	SQLitePath  string
	CORSOrigins []string

	SessionCacheSize int
	SessionTTL       time.Duration

	AbsoluteMax          int
	InitialLimit         int
	MidpointFallbackRate float64
	RejectionRate        float64
	SalaryBandMin        int
	SalaryBandMax        int

	AcceptKeywords         []string
	RemoteKeywords         []string
	EquityKeywords         []string
	RelocationKeywords     []string
	RelocationPrefKeywords []string
}

func Load() Config {
	defaults := extractor.DefaultRules()
	pol := policy.DefaultConfig()

	return Config{
		Port:     envInt("NEGOTIATOR_PORT", 5000),
		LogLevel: envStr("LOG_LEVEL", "info"),

		AnthropicAPIKey:  envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   envStr("NEGOTIATOR_MODEL", "claude-sonnet-4-20250514"),
		MaxTokens:        envInt("NEGOTIATOR_MAX_TOKENS", 400),
		Temperature:      envFloat("NEGOTIATOR_TEMPERATURE", 0.7),
		GeneratorTimeout: time.Duration(envInt("GENERATOR_TIMEOUT", 60)) * time.Second,

		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		SQLitePath:  envStr("SQLITE_PATH", ""),
		CORSOrigins: envList("CORS_ORIGINS", []string{"*"}),

		SessionCacheSize: envInt("SESSION_CACHE_SIZE", 1024),
		SessionTTL:       time.Duration(envInt("SESSION_TTL", 60)) * time.Minute,

		AbsoluteMax:          envInt("ABSOLUTE_MAX_SALARY", pol.AbsoluteMax),
		InitialLimit:         envInt("INITIAL_LIMIT", pol.InitialLimit),
		MidpointFallbackRate: envFloat("MIDPOINT_FALLBACK_RATE", pol.MidpointFallbackRate),
		RejectionRate:        envFloat("REJECTION_RATE", pol.SingleRejectionRate),
		SalaryBandMin:        envInt("SALARY_BAND_MIN", defaults.SalaryMin),
		SalaryBandMax:        envInt("SALARY_BAND_MAX", defaults.SalaryMax),

		AcceptKeywords:         envList("ACCEPT_KEYWORDS", negotiation.DefaultAcceptKeywords),
		RemoteKeywords:         envList("PERK_REMOTE_KEYWORDS", defaults.Families[0].Keywords),
		EquityKeywords:         envList("PERK_EQUITY_KEYWORDS", defaults.Families[1].Keywords),
		RelocationKeywords:     envList("PERK_RELOCATION_KEYWORDS", defaults.Families[2].Keywords),
		RelocationPrefKeywords: envList("PREF_RELOCATION_KEYWORDS", defaults.Families[2].Preferences),
	}
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("NEGOTIATOR_PORT out of range: %d", c.Port))
	}
	if c.SalaryBandMin >= c.SalaryBandMax {
		errs = append(errs, fmt.Errorf("SALARY_BAND_MIN %d must be below SALARY_BAND_MAX %d", c.SalaryBandMin, c.SalaryBandMax))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("NEGOTIATOR_MAX_TOKENS must be > 0"))
	}
	if c.GeneratorTimeout <= 0 {
		errs = append(errs, fmt.Errorf("GENERATOR_TIMEOUT must be > 0"))
	}
	if len(c.AcceptKeywords) == 0 {
		errs = append(errs, fmt.Errorf("ACCEPT_KEYWORDS cannot be empty"))
	}
	if err := c.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Policy returns the concession settings.
func (c Config) Policy() policy.Config {
	return policy.Config{
		AbsoluteMax:          c.AbsoluteMax,
		InitialLimit:         c.InitialLimit,
		MidpointFallbackRate: c.MidpointFallbackRate,
		SingleRejectionRate:  c.RejectionRate,
	}
}

// ExtractorRules returns the salary band and perk vocabulary.
func (c Config) ExtractorRules() extractor.Rules {
	return extractor.Rules{
		SalaryMin: c.SalaryBandMin,
		SalaryMax: c.SalaryBandMax,
		Families: []extractor.PerkFamily{
			{Name: "remote work", Keywords: c.RemoteKeywords, Preferences: c.RemoteKeywords},
			{Name: "stock options", Keywords: c.EquityKeywords, Preferences: c.EquityKeywords},
			{Name: "relocation assistance", Keywords: c.RelocationKeywords, Preferences: c.RelocationPrefKeywords},
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envList reads a comma separated list, dropping blank items.
func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
