// Package config holds the frozen configuration surface of §6: six
// sections (token_budget, vision, facts, autodev with nested llm/git) plus
// process-wide log settings. Config is assembled once by Load and never
// re-read during operation (§9).
package config

// TokenBudgetConfig mirrors BudgetConfig (§3.1): six integers with the
// invariant that the first five sum to at most MaxTotal plus 2% headroom.
type TokenBudgetConfig struct {
	System           int `yaml:"system"`
	RunningBrief     int `yaml:"running_brief"`
	RecentTurns      int `yaml:"recent_turns"`
	RetrievedContext int `yaml:"retrieved_context"`
	Completion       int `yaml:"completion"`
	MaxTotal         int `yaml:"max_total"`
}

// DefaultTokenBudget returns the spec's documented defaults.
func DefaultTokenBudget() TokenBudgetConfig {
	return TokenBudgetConfig{
		System:           700,
		RunningBrief:     1200,
		RecentTurns:      450,
		RetrievedContext: 3750,
		Completion:       1000,
		MaxTotal:         8000,
	}
}

// VisionConfig configures the OCR decode path (§4.2, §6).
type VisionConfig struct {
	Enabled              bool   `yaml:"enabled"`
	ServiceURL           string `yaml:"service_url"`
	APIKey               string `yaml:"api_key"`
	TimeoutMS            int    `yaml:"timeout_ms"`
	MaxRegionsPerRequest int    `yaml:"max_regions_per_request"`
	DefaultFidelity      string `yaml:"default_fidelity"`
	CacheTTLSeconds      int    `yaml:"cache_ttl_secs"`
	CacheSize            int    `yaml:"cache_size"`
	MaxConcurrentDecodes int    `yaml:"max_concurrent_decodes"`
	MaxRetries           int    `yaml:"max_retries"`
	RetryBackoffMS       int    `yaml:"retry_backoff_ms"`
	CircuitThreshold     int    `yaml:"circuit_threshold"`
	CircuitCooldownSecs  int    `yaml:"circuit_cooldown_secs"`
}

// DefaultVision returns the spec's documented vision defaults.
func DefaultVision() VisionConfig {
	return VisionConfig{
		Enabled:              true,
		TimeoutMS:            15000,
		MaxRegionsPerRequest: 16,
		DefaultFidelity:      "10x",
		CacheTTLSeconds:      300,
		CacheSize:            2048,
		MaxConcurrentDecodes: 8,
		MaxRetries:           2,
		RetryBackoffMS:       100,
		CircuitThreshold:     5,
		CircuitCooldownSecs:  30,
	}
}

// FactsConfig configures the fact store (§4.3, §6).
type FactsConfig struct {
	CollectionName      string  `yaml:"collection_name"`
	DedupEnabled        bool    `yaml:"dedup_enabled"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	MaxFactsPerQuery    int     `yaml:"max_facts_per_query"`
	VectorSize          int     `yaml:"vector_size"`
	QdrantDSN           string  `yaml:"qdrant_dsn"`
}

// DefaultFacts returns the spec's documented facts defaults.
func DefaultFacts() FactsConfig {
	return FactsConfig{
		CollectionName:      "facts",
		DedupEnabled:        true,
		ConfidenceThreshold: 0.5,
		MaxFactsPerQuery:    100,
		VectorSize:          8,
		QdrantDSN:           "http://localhost:6334",
	}
}

// LLMConfig configures the LLM endpoint used by the summarizer and codegen
// tool (OpenAI-compatible by default, Anthropic as an alternate provider).
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "openai" | "anthropic"
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// GitConfig configures the autodev git tools.
type GitConfig struct {
	GitHubToken string `yaml:"github_token"`
	UserAgent   string `yaml:"user_agent"`
}

// AutodevConfig configures the task orchestrator (§4.4, §6).
type AutodevConfig struct {
	Enabled           bool      `yaml:"enabled"`
	Provider          string    `yaml:"provider"`
	MaxParallelTasks  int       `yaml:"max_parallel_tasks"`
	MaxStepRetries    int       `yaml:"max_step_retries"`
	DefaultRiskTier   string    `yaml:"default_risk_tier"`
	SandboxImage      string    `yaml:"sandbox_image"`
	RunnerTimeoutSecs int       `yaml:"runner_timeout_secs"`
	OPAURL            string    `yaml:"opa_url"`
	PolicyPackage     string    `yaml:"policy_package"`
	AllowlistRepos    []string  `yaml:"allowlist_repos"`
	SearchMaxResults  int       `yaml:"search_max_results"`
	LLM               LLMConfig `yaml:"llm"`
	Git               GitConfig `yaml:"git"`
}

// DefaultAutodev returns the spec's documented autodev defaults.
func DefaultAutodev() AutodevConfig {
	return AutodevConfig{
		Enabled:           true,
		Provider:          "heuristic",
		MaxParallelTasks:  4,
		MaxStepRetries:    1,
		DefaultRiskTier:   "low",
		SandboxImage:      "ragctx/sandbox:latest",
		RunnerTimeoutSecs: 600,
		PolicyPackage:     "autodev::policy",
		SearchMaxResults:  50,
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		Git: GitConfig{
			UserAgent: "ragctx-autodev",
		},
	}
}

// Config is the frozen, process-wide configuration surface.
type Config struct {
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`

	TokenBudget TokenBudgetConfig `yaml:"token_budget"`
	Vision      VisionConfig      `yaml:"vision"`
	Facts       FactsConfig       `yaml:"facts"`
	Autodev     AutodevConfig     `yaml:"autodev"`
}

// Default returns a Config populated with every documented default.
func Default() Config {
	return Config{
		LogLevel:    "info",
		HTTPAddr:    ":8080",
		TokenBudget: DefaultTokenBudget(),
		Vision:      DefaultVision(),
		Facts:       DefaultFacts(),
		Autodev:     DefaultAutodev(),
	}
}
