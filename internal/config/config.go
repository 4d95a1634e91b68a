package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env file loaded by LoadEnvFile).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	Dialer DialerConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. Without a host the cross-process call guard is off
// and only the in-process phase check applies.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	APIKeySID    string
	APIKeySecret string
	TwiMLAppSID  string
	CallerID     string

	// PublicBaseURL is the externally reachable base for webhooks, e.g.
	// https://dialer.example.com. Signature checks are computed against it.
	PublicBaseURL string
	VoiceTokenTTL time.Duration
	RingTimeout   time.Duration
}

type DialerConfig struct {
	// Provider is "twilio" or "sim".
	Provider         string
	CountryCode      string
	TrunkPrefix      string
	SettleDelay      time.Duration
	TokenRefreshLead time.Duration
	QueuePageSize    int
	CallbackPageSize int
	// CallGuardTTL bounds how long a crashed process can hold an agent's call lease.
	CallGuardTTL time.Duration
}

const (
	ProviderTwilio = "twilio"
	ProviderSim    = "sim"
)

// LoadEnvFile loads variables from ENV_FILE, or ./.env when it exists.
// Variables already set in the environment win.
func LoadEnvFile() error {
	if path := strings.TrimSpace(os.Getenv("ENV_FILE")); path != "" {
		return godotenv.Load(path)
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	db, err := loadDB()
	if err != nil {
		parseErrs = append(parseErrs, err)
	}
	c.DB = db

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.APIKeySID = strings.TrimSpace(os.Getenv("TWILIO_API_KEY_SID"))
	c.Twilio.APIKeySecret = os.Getenv("TWILIO_API_KEY_SECRET")
	c.Twilio.TwiMLAppSID = strings.TrimSpace(os.Getenv("TWILIO_TWIML_APP_SID"))
	c.Twilio.CallerID = strings.TrimSpace(os.Getenv("TWILIO_CALLER_ID"))
	c.Twilio.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.Twilio.VoiceTokenTTL = mustDuration("TWILIO_VOICE_TOKEN_TTL")
	c.Twilio.RingTimeout = mustDuration("TWILIO_RING_TIMEOUT")

	c.Dialer.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("TELEPHONY_PROVIDER")))
	c.Dialer.CountryCode = strings.TrimPrefix(strings.TrimSpace(os.Getenv("DIALER_COUNTRY_CODE")), "+")
	c.Dialer.TrunkPrefix = strings.TrimSpace(os.Getenv("DIALER_TRUNK_PREFIX"))
	c.Dialer.SettleDelay = mustDuration("DIALER_SETTLE_DELAY")
	c.Dialer.TokenRefreshLead = mustDuration("DIALER_TOKEN_REFRESH_LEAD")
	c.Dialer.CallGuardTTL = mustDuration("DIALER_CALL_GUARD_TTL")
	{
		n, err := optionalInt("DIALER_QUEUE_PAGE_SIZE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dialer.QueuePageSize = n
	}
	{
		n, err := optionalInt("DIALER_CALLBACK_PAGE_SIZE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Dialer.CallbackPageSize = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadStore reads only the database section. The operator CLI uses it.
func LoadStore() (DBConfig, error) {
	db, err := loadDB()
	if err != nil {
		return DBConfig{}, err
	}
	errs := db.validate(false)
	return db, joinErrors(errs)
}

func loadDB() (DBConfig, error) {
	var db DBConfig
	db.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	n, err := mustInt("DB_PORT")
	db.Port = n
	db.User = strings.TrimSpace(os.Getenv("DB_USER"))
	db.Password = os.Getenv("DB_PASSWORD")
	db.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	db.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	return db, err
}

// Validate reports every problem at once and fills in defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	errs = append(errs, c.DB.validate(c.IsProduction())...)

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	errs = append(errs, c.validateDialer()...)
	return joinErrors(errs)
}

func (c *Config) validateDialer() []error {
	var errs []error
	d := &c.Dialer

	if d.Provider == "" {
		if c.IsProduction() {
			d.Provider = ProviderTwilio
		} else {
			d.Provider = ProviderSim
		}
	}
	switch d.Provider {
	case ProviderTwilio:
		errs = append(errs, c.validateTwilio()...)
	case ProviderSim:
		if c.IsProduction() {
			errs = append(errs, errors.New("TELEPHONY_PROVIDER=sim is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("TELEPHONY_PROVIDER must be one of twilio, sim, got %q", d.Provider))
	}

	if d.CountryCode == "" {
		d.CountryCode = "46"
	} else if !allDigits(d.CountryCode) || len(d.CountryCode) > 3 {
		errs = append(errs, fmt.Errorf("DIALER_COUNTRY_CODE must be 1-3 digits, got %q", d.CountryCode))
	}
	if d.TrunkPrefix == "" {
		d.TrunkPrefix = "0"
	}
	if d.SettleDelay <= 0 {
		d.SettleDelay = 1500 * time.Millisecond
	}
	if d.TokenRefreshLead <= 0 {
		d.TokenRefreshLead = time.Minute
	}
	if d.QueuePageSize <= 0 {
		d.QueuePageSize = 200
	}
	if d.CallbackPageSize <= 0 {
		d.CallbackPageSize = 25
	}
	if d.CallGuardTTL <= 0 {
		d.CallGuardTTL = 2 * time.Hour
	}
	return errs
}

func (c *Config) validateTwilio() []error {
	var errs []error
	t := &c.Twilio
	if t.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if t.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if t.APIKeySID == "" || t.APIKeySecret == "" {
		errs = append(errs, errors.New("TWILIO_API_KEY_SID and TWILIO_API_KEY_SECRET are required"))
	}
	if t.TwiMLAppSID == "" {
		errs = append(errs, errors.New("TWILIO_TWIML_APP_SID is required"))
	}
	if t.CallerID == "" {
		errs = append(errs, errors.New("TWILIO_CALLER_ID is required"))
	}
	if t.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required for Twilio webhooks"))
	} else if !strings.HasPrefix(t.PublicBaseURL, "https://") && c.IsProduction() {
		errs = append(errs, errors.New("PUBLIC_BASE_URL must be https in production"))
	}
	if t.VoiceTokenTTL <= 0 {
		t.VoiceTokenTTL = time.Hour
	}
	if t.RingTimeout <= 0 {
		t.RingTimeout = 30 * time.Second
	}
	return errs
}

func (db *DBConfig) validate(production bool) []error {
	var errs []error
	if db.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if db.Port <= 0 || db.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", db.Port))
	}
	if db.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if db.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if db.SSLMode == "" {
		if production {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			db.SSLMode = "disable"
		}
	}
	if db.SSLMode != "" && !isValidSSLMode(db.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", db.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	return c.DB.DSN()
}

// DSN contains secrets; never log it.
func (db DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host,
		db.Port,
		db.User,
		db.Password,
		db.Name,
		db.SSLMode,
	)
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// WebhookURL joins a path onto the public base URL.
func (c Config) WebhookURL(path string) string {
	if c.Twilio.PublicBaseURL == "" {
		return ""
	}
	return c.Twilio.PublicBaseURL + "/" + strings.TrimLeft(path, "/")
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
