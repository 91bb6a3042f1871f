package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

var ErrMissingSlackToken = errors.New("SLACK_TOKEN environment variable not set")

const (
	LogSourceKubernetes = "kubernetes"
	LogSourceDirectory  = "directory"
)

type Config struct {
	Server     ServerConfig
	Slack      SlackConfig
	Kafka      KafkaConfig
	Digest     DigestConfig
	LogSource  LogSourceConfig
	Kubernetes KubernetesConfig
	Debug      bool
}

type ServerConfig struct {
	Port string
}

type SlackConfig struct {
	Token      string
	Channel    string
	Enabled    bool
	MaxRetries int
}

// KafkaConfig enables the digest topic sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers      []string
	DigestTopic  string
	BatchTimeout time.Duration
}

type DigestConfig struct {
	WindowMinutes    int
	LocalTimeOffset  time.Duration
	OutputFile       string
	Title            string
	StrictTimestamps bool
	Schedule         string // empty: run once and exit
}

func (d DigestConfig) Window() time.Duration {
	return time.Duration(d.WindowMinutes) * time.Minute
}

type LogSourceConfig struct {
	Kind         string
	LogDirectory string
}

type KubernetesConfig struct {
	Namespace        string
	LabelSelector    string
	Kubeconfig       string
	FetchConcurrency int
}

func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("CHANNEL_NAME", "#rancher-errors")
	v.SetDefault("SEND_TO_SLACK", true)
	v.SetDefault("SLACK_MAX_RETRIES", 2)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_DIGEST_TOPIC", "error_digests")
	v.SetDefault("KAFKA_BATCH_TIMEOUT", "1s")
	v.SetDefault("X_MINUTES", 60)
	v.SetDefault("LOCAL_TIME_OFFSET_HOURS", 2)
	v.SetDefault("DEBUG_FILE", "/tmp/debug_output.txt")
	v.SetDefault("REPORT_TITLE", "Rancher Errors")
	v.SetDefault("STRICT_TIMESTAMPS", true)
	v.SetDefault("DIGEST_SCHEDULE", "")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_SOURCE", LogSourceKubernetes)
	v.SetDefault("LOG_DIRECTORY", "./logs")
	v.SetDefault("NAMESPACE", "cattle-system")
	v.SetDefault("LABEL_SELECTOR", "app=rancher")
	v.SetDefault("KUBECONFIG", "")
	v.SetDefault("FETCH_CONCURRENCY", 4)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn().Err(err).Msg("Error reading config file")
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var config Config
	var err error
	config.Server.Port = v.GetString("SERVER_PORT")
	if config.Debug, err = getBool(v, "DEBUG"); err != nil {
		return nil, err
	}

	// --- Slack ---
	config.Slack.Token = v.GetString("SLACK_TOKEN")
	if config.Slack.Token == "" {
		return nil, ErrMissingSlackToken
	}
	config.Slack.Channel = v.GetString("CHANNEL_NAME")
	if config.Slack.Enabled, err = getBool(v, "SEND_TO_SLACK"); err != nil {
		return nil, err
	}
	if config.Slack.MaxRetries, err = getInt(v, "SLACK_MAX_RETRIES"); err != nil {
		return nil, err
	}
	if config.Slack.MaxRetries < 0 {
		return nil, fmt.Errorf("SLACK_MAX_RETRIES must not be negative, got %d", config.Slack.MaxRetries)
	}

	// --- Kafka ---
	config.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	config.Kafka.DigestTopic = v.GetString("KAFKA_DIGEST_TOPIC")
	if config.Kafka.BatchTimeout, err = cast.ToDurationE(strings.TrimSpace(v.GetString("KAFKA_BATCH_TIMEOUT"))); err != nil {
		return nil, fmt.Errorf("invalid KAFKA_BATCH_TIMEOUT: %w", err)
	}

	// --- Digest ---
	if config.Digest.WindowMinutes, err = getInt(v, "X_MINUTES"); err != nil {
		return nil, err
	}
	if config.Digest.WindowMinutes <= 0 {
		return nil, fmt.Errorf("X_MINUTES must be positive, got %d", config.Digest.WindowMinutes)
	}
	offsetHours, err := getInt(v, "LOCAL_TIME_OFFSET_HOURS")
	if err != nil {
		return nil, err
	}
	config.Digest.LocalTimeOffset = time.Duration(offsetHours) * time.Hour
	config.Digest.OutputFile = v.GetString("DEBUG_FILE")
	config.Digest.Title = v.GetString("REPORT_TITLE")
	if config.Digest.StrictTimestamps, err = getBool(v, "STRICT_TIMESTAMPS"); err != nil {
		return nil, err
	}
	config.Digest.Schedule = strings.TrimSpace(v.GetString("DIGEST_SCHEDULE"))

	// --- Log Source ---
	config.LogSource.Kind = strings.ToLower(v.GetString("LOG_SOURCE"))
	config.LogSource.LogDirectory = v.GetString("LOG_DIRECTORY")
	switch config.LogSource.Kind {
	case LogSourceKubernetes, LogSourceDirectory:
	default:
		return nil, fmt.Errorf("unknown LOG_SOURCE %q", config.LogSource.Kind)
	}

	// --- Kubernetes ---
	config.Kubernetes.Namespace = v.GetString("NAMESPACE")
	config.Kubernetes.LabelSelector = v.GetString("LABEL_SELECTOR")
	config.Kubernetes.Kubeconfig = v.GetString("KUBECONFIG")
	if config.Kubernetes.FetchConcurrency, err = getInt(v, "FETCH_CONCURRENCY"); err != nil {
		return nil, err
	}
	if config.Kubernetes.FetchConcurrency < 1 {
		config.Kubernetes.FetchConcurrency = 1
	}

	log.Info().
		Str("channel", config.Slack.Channel).
		Bool("send_to_slack", config.Slack.Enabled).
		Int("window_minutes", config.Digest.WindowMinutes).
		Dur("local_time_offset", config.Digest.LocalTimeOffset).
		Str("output_file", config.Digest.OutputFile).
		Str("log_source", config.LogSource.Kind).
		Str("namespace", config.Kubernetes.Namespace).
		Str("label_selector", config.Kubernetes.LabelSelector).
		Str("schedule", config.Digest.Schedule).
		Msg("Config loaded")
	return &config, nil
}

// getInt reads a decimal integer. Viper's GetInt maps garbage to 0 and reads
// a leading zero as octal.
func getInt(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return n, nil
}

func getBool(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return b, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
