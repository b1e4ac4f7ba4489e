package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	StoreDriver     string
	SeedFile        string
	JWTIssuer       string
	JWTSecret       string
	InternalToken   string
	WebSocketOrigin string
	LogLevel        string
	LogFormat       string
	AccountCurrency string
	HTTPRate        float64
	HTTPBurst       int
	Bridge          BridgeConfig
	Risk            RiskConfig
}

type BridgeConfig struct {
	URL           string
	ServiceSecret string
	Timeout       time.Duration
	MaxAttempts   int
	Backoff       time.Duration
	RatePerSecond float64
	Burst         int
}

func (b BridgeConfig) Enabled() bool {
	return b.URL != ""
}

type RiskConfig struct {
	MarginCallLevel   decimal.Decimal
	CutoffLevel       decimal.Decimal
	TriggerEpsilon    decimal.Decimal
	Debounce          time.Duration
	ValuationInterval time.Duration
	ValuationTTL      time.Duration
	CutoffInterval    time.Duration
	ConfigTTL         time.Duration
	QuoteMaxAge       time.Duration
	SwapHourUTC       int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present, and CONFIG_FILE may point at a YAML
// file of KEY: value pairs. Real environment variables always win.
func Load() (Config, error) {
	_ = godotenv.Load()
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return load(envSource{file: file})
}

type envSource struct {
	file map[string]string
}

func (s envSource) get(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(s.file[key])
}

func readFile(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	for k, v := range values {
		out[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return out, nil
}

func load(src envSource) (Config, error) {
	var c Config
	var missing []string
	require := func(key string) string {
		v := src.get(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	c.HTTPAddr = require("HTTP_ADDR")
	c.JWTIssuer = require("JWT_ISSUER")
	c.JWTSecret = require("JWT_SECRET")
	c.InternalToken = require("INTERNAL_API_TOKEN")
	c.StoreDriver = strings.ToLower(src.get("STORE_DRIVER"))
	if c.StoreDriver == "" {
		c.StoreDriver = "postgres"
	}
	if c.StoreDriver != "postgres" && c.StoreDriver != "memory" {
		return c, errors.New("invalid STORE_DRIVER: use postgres or memory")
	}
	if c.StoreDriver == "postgres" {
		c.DBDSN = require("DB_DSN")
	} else {
		c.SeedFile = src.get("SEED_FILE")
	}
	c.WebSocketOrigin = src.get("WS_ORIGIN")
	c.LogLevel = withDefault(src.get("LOG_LEVEL"), "info")
	c.LogFormat = withDefault(src.get("LOG_FORMAT"), "text")
	c.AccountCurrency = strings.ToUpper(withDefault(src.get("ACCOUNT_CURRENCY"), "USD"))

	var err error
	if c.HTTPRate, err = strconv.ParseFloat(withDefault(src.get("HTTP_RATE_PER_SECOND"), "10"), 64); err != nil {
		return c, errors.New("invalid HTTP_RATE_PER_SECOND")
	}
	if c.HTTPBurst, err = integer(src, "HTTP_BURST", 30); err != nil {
		return c, err
	}
	c.Bridge.URL = src.get("BRIDGE_URL")
	c.Bridge.ServiceSecret = src.get("BRIDGE_SERVICE_SECRET")
	if c.Bridge.URL != "" && c.Bridge.ServiceSecret == "" {
		missing = append(missing, "BRIDGE_SERVICE_SECRET")
	}
	if c.Bridge.Timeout, err = duration(src, "BRIDGE_TIMEOUT", 5*time.Second); err != nil {
		return c, err
	}
	if c.Bridge.Backoff, err = duration(src, "BRIDGE_BACKOFF", 200*time.Millisecond); err != nil {
		return c, err
	}
	if c.Bridge.MaxAttempts, err = integer(src, "BRIDGE_MAX_ATTEMPTS", 3); err != nil {
		return c, err
	}
	if c.Bridge.Burst, err = integer(src, "BRIDGE_BURST", 10); err != nil {
		return c, err
	}
	rate := withDefault(src.get("BRIDGE_RATE_PER_SECOND"), "20")
	if c.Bridge.RatePerSecond, err = strconv.ParseFloat(rate, 64); err != nil {
		return c, errors.New("invalid BRIDGE_RATE_PER_SECOND")
	}

	if c.Risk.MarginCallLevel, err = dec(src, "MARGIN_CALL_LEVEL", "100"); err != nil {
		return c, err
	}
	if c.Risk.CutoffLevel, err = dec(src, "CUTOFF_LEVEL", "50"); err != nil {
		return c, err
	}
	if c.Risk.TriggerEpsilon, err = dec(src, "TRIGGER_EPSILON", "0.00001"); err != nil {
		return c, err
	}
	if c.Risk.Debounce, err = duration(src, "PRICE_DEBOUNCE", 50*time.Millisecond); err != nil {
		return c, err
	}
	if c.Risk.ValuationInterval, err = duration(src, "VALUATION_INTERVAL", time.Second); err != nil {
		return c, err
	}
	if c.Risk.ValuationTTL, err = duration(src, "VALUATION_TTL", 5*time.Second); err != nil {
		return c, err
	}
	if c.Risk.CutoffInterval, err = duration(src, "CUTOFF_INTERVAL", time.Second); err != nil {
		return c, err
	}
	if c.Risk.ConfigTTL, err = duration(src, "CONFIG_TTL", 5*time.Minute); err != nil {
		return c, err
	}
	if c.Risk.QuoteMaxAge, err = duration(src, "QUOTE_MAX_AGE", 30*time.Second); err != nil {
		return c, err
	}
	if c.Risk.SwapHourUTC, err = integer(src, "SWAP_HOUR_UTC", 21); err != nil {
		return c, err
	}
	if c.Risk.SwapHourUTC < 0 || c.Risk.SwapHourUTC > 23 {
		return c, errors.New("invalid SWAP_HOUR_UTC: use 0-23")
	}
	if !c.Risk.CutoffLevel.LessThan(c.Risk.MarginCallLevel) {
		return c, errors.New("CUTOFF_LEVEL must be below MARGIN_CALL_LEVEL")
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func duration(src envSource, key string, def time.Duration) (time.Duration, error) {
	raw := src.get(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func integer(src envSource, key string, def int) (int, error) {
	raw := src.get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func dec(src envSource, key, def string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(withDefault(src.get(key), def))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
