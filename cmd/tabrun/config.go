package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
	"github.com/thomassthus-stack/Tommytiger/internal/runtime/docker"
)

const envPrefix = "TABRUN"

const (
	defaultKafkaRequestsTopic = "analysis-requests"
	defaultKafkaReportsTopic  = "analysis-reports"
	defaultKafkaGroupID       = "tabrun-worker"
	defaultOpenAIModel        = "gpt-4o-mini"
	defaultMemoryLimit        = 512 << 20
)

type appConfig struct {
	LogLevel  string
	LogFormat string

	Limits analysis.Limits
	// MaxLimits caps limits supplied with a request. Zero fields fall back to Limits.
	MaxLimits   analysis.Limits
	MaxParallel int
	MaxRequests int
	MaxRows     int

	Script struct {
		InProcess bool
	}

	Python struct {
		Enabled   bool
		Image     string
		PidsLimit int64
		NanoCPUs  int64
	}

	Kafka struct {
		Brokers       []string
		RequestsTopic string
		ReportsTopic  string
		GroupID       string
	}

	HTTP struct {
		Addr           string
		MaxUploadBytes int64
	}

	OpenAI struct {
		APIKey      string
		BaseURL     string
		Model       string
		Temperature float32
	}
}

// newViper returns a viper instance reading TABRUN_* variables, with
// dots in keys mapped to underscores (execution.deadline -> TABRUN_EXECUTION_DEADLINE).
func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("execution.deadline", analysis.DefaultDeadline)
	v.SetDefault("execution.memory_limit", defaultMemoryLimit)
	v.SetDefault("execution.max_deadline", 0)
	v.SetDefault("execution.max_memory_limit", 0)
	v.SetDefault("script.in_process", false)
	v.SetDefault("execution.max_parallel", 1)
	v.SetDefault("execution.max_requests", 0)
	v.SetDefault("dataset.max_rows", 0)
	v.SetDefault("python.enabled", false)
	v.SetDefault("python.image", docker.DefaultImage)
	v.SetDefault("python.pids_limit", 64)
	v.SetDefault("python.nano_cpus", 1_000_000_000)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.requests_topic", defaultKafkaRequestsTopic)
	v.SetDefault("kafka.reports_topic", defaultKafkaReportsTopic)
	v.SetDefault("kafka.group_id", defaultKafkaGroupID)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_upload_bytes", 32<<20)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", defaultOpenAIModel)
	v.SetDefault("openai.temperature", 0.1)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("openai.api_key", envPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")

	return v
}

// readConfigFile merges path into v. An empty path is a no-op.
func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	return nil
}

func loadAppConfig(v *viper.Viper) appConfig {
	var cfg appConfig
	cfg.LogLevel = v.GetString("log.level")
	cfg.LogFormat = v.GetString("log.format")

	cfg.Limits = analysis.Limits{
		Deadline:         v.GetDuration("execution.deadline"),
		MemoryLimitBytes: v.GetInt64("execution.memory_limit"),
	}.Normalize()
	cfg.MaxLimits = analysis.Limits{
		Deadline:         v.GetDuration("execution.max_deadline"),
		MemoryLimitBytes: v.GetInt64("execution.max_memory_limit"),
	}.Ceiling(cfg.Limits)
	cfg.MaxParallel = v.GetInt("execution.max_parallel")
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	cfg.MaxRequests = v.GetInt("execution.max_requests")
	if cfg.MaxRequests < 0 {
		cfg.MaxRequests = 0
	}
	cfg.MaxRows = v.GetInt("dataset.max_rows")

	cfg.Script.InProcess = v.GetBool("script.in_process")

	cfg.Python.Enabled = v.GetBool("python.enabled")
	cfg.Python.Image = v.GetString("python.image")
	cfg.Python.PidsLimit = v.GetInt64("python.pids_limit")
	cfg.Python.NanoCPUs = v.GetInt64("python.nano_cpus")

	cfg.Kafka.Brokers = parseBrokerList(v.GetString("kafka.brokers"))
	cfg.Kafka.RequestsTopic = v.GetString("kafka.requests_topic")
	cfg.Kafka.ReportsTopic = v.GetString("kafka.reports_topic")
	cfg.Kafka.GroupID = v.GetString("kafka.group_id")

	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.HTTP.MaxUploadBytes = v.GetInt64("http.max_upload_bytes")

	cfg.OpenAI.APIKey = v.GetString("openai.api_key")
	cfg.OpenAI.BaseURL = v.GetString("openai.base_url")
	cfg.OpenAI.Model = v.GetString("openai.model")
	cfg.OpenAI.Temperature = float32(v.GetFloat64("openai.temperature"))

	return cfg
}

func parseBrokerList(raw string) []string {
	fields := strings.Split(raw, ",")
	brokers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func dockerConfig(cfg appConfig) docker.Config {
	return docker.Config{
		Image:         cfg.Python.Image,
		DefaultLimits: cfg.Limits,
		MaxLimits:     cfg.MaxLimits,
		PidsLimit:     cfg.Python.PidsLimit,
		NanoCPUs:      cfg.Python.NanoCPUs,
	}
}
