package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load assembles Config from defaults, an optional YAML file (CONFIG_PATH),
// and environment overrides, in that order — env always wins. The result
// is returned by value and is never re-read during operation (§9).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}

	if v, ok := envBool("DEEPSEEK_OCR_ENABLED"); ok {
		cfg.Vision.Enabled = v
	}
	if v := strings.TrimSpace(os.Getenv("VISION_SERVICE_URL")); v != "" {
		cfg.Vision.ServiceURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VISION_API_KEY")); v != "" {
		cfg.Vision.APIKey = v
	}
	if v, ok := envInt("VISION_TIMEOUT_MS"); ok {
		cfg.Vision.TimeoutMS = v
	}
	if v, ok := envInt("VISION_MAX_REGIONS"); ok {
		cfg.Vision.MaxRegionsPerRequest = v
	}
	if v, ok := envInt("DEEPSEEK_CACHE_TTL_SECS"); ok {
		cfg.Vision.CacheTTLSeconds = v
	}
	if v, ok := envInt("DEEPSEEK_CACHE_SIZE"); ok {
		cfg.Vision.CacheSize = v
	}
	if v, ok := envInt("VISION_MAX_CONCURRENT_DECODES"); ok {
		cfg.Vision.MaxConcurrentDecodes = v
	}
	if v, ok := envInt("DEEPSEEK_MAX_RETRIES"); ok {
		cfg.Vision.MaxRetries = v
	}
	if v, ok := envInt("DEEPSEEK_RETRY_BACKOFF_MS"); ok {
		cfg.Vision.RetryBackoffMS = v
	}
	if v, ok := envInt("DEEPSEEK_CIRCUIT_THRESHOLD"); ok {
		cfg.Vision.CircuitThreshold = v
	}
	if v, ok := envInt("DEEPSEEK_CIRCUIT_COOLDOWN_SECS"); ok {
		cfg.Vision.CircuitCooldownSecs = v
	}

	if v, ok := envBool("AUTODEV_ENABLED"); ok {
		cfg.Autodev.Enabled = v
	}
	if v, ok := envInt("AUTODEV_MAX_PARALLEL"); ok {
		cfg.Autodev.MaxParallelTasks = v
	}
	if v := strings.TrimSpace(os.Getenv("OPA_URL")); v != "" {
		cfg.Autodev.OPAURL = v
	}
	if v := strings.TrimSpace(os.Getenv("AUTODEV_ALLOWED_REPOS")); v != "" {
		cfg.Autodev.AllowlistRepos = splitNonEmpty(v, ",")
	}
	if v, ok := envInt("AUTODEV_SEARCH_MAX_RESULTS"); ok {
		cfg.Autodev.SearchMaxResults = v
	}
	if v := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); v != "" {
		cfg.Autodev.Git.GitHubToken = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Autodev.LLM.APIKey = v
	}
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string) (bool, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false, false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on"), true
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
