package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Judge transports supported by the dispatcher.
const (
	TransportNATS = "nats"
	TransportSQS  = "sqs"
	TransportHTTP = "http"
)

// ThrottleConfig mirrors a token bucket definition.
type ThrottleConfig struct {
	Capacity        float64
	FillRate        float64
	DefaultCapacity float64
}

// Config holds runtime configuration values for the judge worker.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string

	JudgeTransport     string
	JudgeSubject       string
	JudgeResultSubject string
	JudgeStream        string
	JudgeSQSQueueURL   string
	JudgeHTTPURL       string
	JudgeHTTPToken     string
	JudgeTimeout       time.Duration

	UserThrottle ThrottleConfig

	SubmissionListShowAll bool
	SubmissionMaxPageSize int
	CaptchaTTL            time.Duration

	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration
	ReconcileBatchSize  int
}

// HTTPAddress returns the address the ops server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JUDGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "GEMA Judge")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8081")
	v.SetDefault("judge.transport", TransportNATS)
	v.SetDefault("judge.subject", "judge.tasks")
	v.SetDefault("judge.result_subject", "judge.results")
	v.SetDefault("judge.stream", "JUDGE_TASKS")
	v.SetDefault("judge.timeout", "5s")
	v.SetDefault("throttling.user.capacity", 20)
	v.SetDefault("throttling.user.fill_rate", 0.03)
	v.SetDefault("throttling.user.default_capacity", 10)
	v.SetDefault("submission.list_show_all", true)
	v.SetDefault("submission.max_page_size", 250)
	v.SetDefault("captcha.ttl", "5m")
	v.SetDefault("reconcile.interval", "30s")
	v.SetDefault("reconcile.stale_after", "2m")
	v.SetDefault("reconcile.batch_size", 50)
}

func fromViper(v *viper.Viper) (Config, error) {
	judgeTimeout, err := parseDuration(v, "judge.timeout")
	if err != nil {
		return Config{}, err
	}
	captchaTTL, err := parseDuration(v, "captcha.ttl")
	if err != nil {
		return Config{}, err
	}
	reconcileInterval, err := parseDuration(v, "reconcile.interval")
	if err != nil {
		return Config{}, err
	}
	staleAfter, err := parseDuration(v, "reconcile.stale_after")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:            v.GetString("app.name"),
		AppEnv:             v.GetString("app.env"),
		AppPort:            v.GetString("app.port"),
		DatabaseURL:        v.GetString("database.url"),
		RedisURL:           v.GetString("redis.url"),
		NATSURL:            v.GetString("nats.url"),
		JudgeTransport:     strings.ToLower(strings.TrimSpace(v.GetString("judge.transport"))),
		JudgeSubject:       v.GetString("judge.subject"),
		JudgeResultSubject: v.GetString("judge.result_subject"),
		JudgeStream:        v.GetString("judge.stream"),
		JudgeSQSQueueURL:   v.GetString("judge.sqs_queue_url"),
		JudgeHTTPURL:       v.GetString("judge.http_url"),
		JudgeHTTPToken:     v.GetString("judge.http_token"),
		JudgeTimeout:       judgeTimeout,
		UserThrottle: ThrottleConfig{
			Capacity:        v.GetFloat64("throttling.user.capacity"),
			FillRate:        v.GetFloat64("throttling.user.fill_rate"),
			DefaultCapacity: v.GetFloat64("throttling.user.default_capacity"),
		},
		SubmissionListShowAll: v.GetBool("submission.list_show_all"),
		SubmissionMaxPageSize: v.GetInt("submission.max_page_size"),
		CaptchaTTL:            captchaTTL,
		ReconcileInterval:     reconcileInterval,
		ReconcileStaleAfter:   staleAfter,
		ReconcileBatchSize:    v.GetInt("reconcile.batch_size"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if cfg.SubmissionMaxPageSize <= 0 {
		cfg.SubmissionMaxPageSize = 250
	}
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = 50
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.UserThrottle.Capacity <= 0 || c.UserThrottle.FillRate <= 0 {
		return fmt.Errorf("throttling capacity and fill rate must be positive")
	}

	for key, d := range map[string]time.Duration{
		"judge.timeout":         c.JudgeTimeout,
		"captcha.ttl":           c.CaptchaTTL,
		"reconcile.interval":    c.ReconcileInterval,
		"reconcile.stale_after": c.ReconcileStaleAfter,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	if c.ReconcileStaleAfter <= c.JudgeTimeout {
		return fmt.Errorf("reconcile stale_after must exceed the judge timeout")
	}

	switch c.JudgeTransport {
	case TransportNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("nats url must be provided for the nats judge transport")
		}
	case TransportSQS:
		if c.JudgeSQSQueueURL == "" {
			return fmt.Errorf("sqs queue url must be provided for the sqs judge transport")
		}
	case TransportHTTP:
		if c.JudgeHTTPURL == "" {
			return fmt.Errorf("judge http url must be provided for the http judge transport")
		}
	default:
		return fmt.Errorf("unknown judge transport %q", c.JudgeTransport)
	}

	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, fmt.Errorf("%s must not be empty", key)
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
