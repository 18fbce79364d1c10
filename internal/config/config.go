package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kelreel/sonichash/internal/registry"
)

type GlobalFlags struct {
	ConfigPath    string
	JSON          bool
	Plain         bool
	Select        string
	ResultsOnly   bool
	EnableActions string
	Timeout       string
	Retries       int
	LogLevel      string
	LogFormat     string
	RPCURL        string
	PersonaDir    string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableActions  []string
	Timeout        time.Duration
	TurnTimeout    time.Duration
	Retries        int
	LogLevel       string
	LogFormat      string
	ChainID        int64
	RPCURL         string
	SwapRouter     string
	SwapSlippageBP int64

	LLMBaseURL       string
	LLMModel         string
	LLMDetectorModel string
	LLMAPIKey        string

	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string

	AlloraBaseURL string
	AlloraNetwork string
	AlloraAPIKey  string

	ActionStorePath string
	ActionLockPath  string
	PersonaDir      string
	ListenAddr      string

	PriceTTL      time.Duration
	WalletTTL     time.Duration
	PredictionTTL time.Duration
}

type fileConfig struct {
	Output      string `yaml:"output"`
	Timeout     string `yaml:"timeout"`
	TurnTimeout string `yaml:"turn_timeout"`
	Retries     *int   `yaml:"retries"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Chain struct {
		ID          *int64 `yaml:"id"`
		RPCURL      string `yaml:"rpc_url"`
		SwapRouter  string `yaml:"swap_router"`
		SlippageBPS *int64 `yaml:"slippage_bps"`
	} `yaml:"chain"`
	Cache struct {
		PriceTTL      string `yaml:"price_ttl"`
		WalletTTL     string `yaml:"wallet_ttl"`
		PredictionTTL string `yaml:"prediction_ttl"`
	} `yaml:"cache"`
	Actions struct {
		Enabled  []string `yaml:"enabled"`
		Path     string   `yaml:"path"`
		LockPath string   `yaml:"lock_path"`
	} `yaml:"actions"`
	Personas struct {
		Dir string `yaml:"dir"`
	} `yaml:"personas"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	Providers struct {
		LLM struct {
			APIKey        string `yaml:"api_key"`
			APIKeyEnv     string `yaml:"api_key_env"`
			BaseURL       string `yaml:"base_url"`
			Model         string `yaml:"model"`
			DetectorModel string `yaml:"detector_model"`
		} `yaml:"llm"`
		CoinGecko struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"coingecko"`
		Allora struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
			Network   string `yaml:"network"`
		} `yaml:"allora"`
	} `yaml:"providers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.TurnTimeout <= 0 {
		settings.TurnTimeout = 60 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.RPCURL, err = registry.ResolveRPCURL(settings.RPCURL, settings.ChainID); err != nil {
		return Settings{}, err
	}
	if err := validate(settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:       "json",
		Timeout:          10 * time.Second,
		TurnTimeout:      60 * time.Second,
		Retries:          0,
		LogLevel:         "info",
		LogFormat:        "console",
		ChainID:          registry.SonicChainID,
		SwapSlippageBP:   50,
		LLMBaseURL:       registry.OpenAIBaseURL,
		LLMModel:         "gpt-4o",
		LLMDetectorModel: "gpt-4o",
		CoinGeckoBaseURL: registry.CoinGeckoBaseURL,
		AlloraBaseURL:    registry.AlloraBaseURL,
		AlloraNetwork:    registry.AlloraNetwork,
		ActionStorePath:  filepath.Join(dataDir, "actions.db"),
		ActionLockPath:   filepath.Join(dataDir, "actions.lock"),
		PersonaDir:       filepath.Join(dataDir, "personas"),
		ListenAddr:       ":3005",
		PriceTTL:         5 * time.Minute,
		WalletTTL:        time.Minute,
		PredictionTTL:    time.Minute,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sonichash", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "sonichash"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := parseDurationInto(cfg.Timeout, "timeout", &settings.Timeout); err != nil {
		return err
	}
	if err := parseDurationInto(cfg.TurnTimeout, "turn_timeout", &settings.TurnTimeout); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	setString(&settings.LogLevel, cfg.Log.Level)
	setString(&settings.LogFormat, cfg.Log.Format)

	if cfg.Chain.ID != nil {
		settings.ChainID = *cfg.Chain.ID
	}
	setString(&settings.RPCURL, cfg.Chain.RPCURL)
	setString(&settings.SwapRouter, cfg.Chain.SwapRouter)
	if cfg.Chain.SlippageBPS != nil {
		settings.SwapSlippageBP = *cfg.Chain.SlippageBPS
	}

	if err := parseDurationInto(cfg.Cache.PriceTTL, "cache.price_ttl", &settings.PriceTTL); err != nil {
		return err
	}
	if err := parseDurationInto(cfg.Cache.WalletTTL, "cache.wallet_ttl", &settings.WalletTTL); err != nil {
		return err
	}
	if err := parseDurationInto(cfg.Cache.PredictionTTL, "cache.prediction_ttl", &settings.PredictionTTL); err != nil {
		return err
	}

	if len(cfg.Actions.Enabled) > 0 {
		settings.EnableActions = normalizeList(cfg.Actions.Enabled)
	}
	setString(&settings.ActionStorePath, cfg.Actions.Path)
	setString(&settings.ActionLockPath, cfg.Actions.LockPath)
	setString(&settings.PersonaDir, cfg.Personas.Dir)
	setString(&settings.ListenAddr, cfg.Server.Listen)

	llm := cfg.Providers.LLM
	setString(&settings.LLMBaseURL, llm.BaseURL)
	setString(&settings.LLMModel, llm.Model)
	setString(&settings.LLMDetectorModel, llm.DetectorModel)
	setAPIKey(&settings.LLMAPIKey, llm.APIKey, llm.APIKeyEnv)

	setString(&settings.CoinGeckoBaseURL, cfg.Providers.CoinGecko.BaseURL)
	setAPIKey(&settings.CoinGeckoAPIKey, cfg.Providers.CoinGecko.APIKey, cfg.Providers.CoinGecko.APIKeyEnv)

	setString(&settings.AlloraBaseURL, cfg.Providers.Allora.BaseURL)
	setString(&settings.AlloraNetwork, cfg.Providers.Allora.Network)
	setAPIKey(&settings.AlloraAPIKey, cfg.Providers.Allora.APIKey, cfg.Providers.Allora.APIKeyEnv)

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("SONICHASH_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("SONICHASH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("SONICHASH_TURN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.TurnTimeout = d
		}
	}
	if v := os.Getenv("SONICHASH_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	setString(&settings.LogLevel, os.Getenv("SONICHASH_LOG_LEVEL"))
	setString(&settings.LogFormat, os.Getenv("SONICHASH_LOG_FORMAT"))
	if v := os.Getenv("SONICHASH_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	setString(&settings.RPCURL, firstEnv("SONICHASH_RPC_URL", "SONIC_RPC_URL"))
	setString(&settings.SwapRouter, os.Getenv("SONICHASH_SWAP_ROUTER"))
	setString(&settings.LLMBaseURL, os.Getenv("SONICHASH_LLM_BASE_URL"))
	setString(&settings.LLMModel, os.Getenv("SONICHASH_LLM_MODEL"))
	setString(&settings.LLMDetectorModel, os.Getenv("SONICHASH_LLM_DETECTOR_MODEL"))
	setString(&settings.LLMAPIKey, firstEnv("SONICHASH_LLM_API_KEY", "OPENAI_API_KEY"))
	setString(&settings.CoinGeckoBaseURL, os.Getenv("SONICHASH_COINGECKO_BASE_URL"))
	setString(&settings.CoinGeckoAPIKey, os.Getenv("SONICHASH_COINGECKO_API_KEY"))
	setString(&settings.AlloraBaseURL, os.Getenv("SONICHASH_ALLORA_BASE_URL"))
	setString(&settings.AlloraNetwork, os.Getenv("SONICHASH_ALLORA_NETWORK"))
	setString(&settings.AlloraAPIKey, firstEnv("SONICHASH_ALLORA_API_KEY", "ALLORA_API_KEY"))
	setString(&settings.ActionStorePath, os.Getenv("SONICHASH_ACTIONS_PATH"))
	setString(&settings.ActionLockPath, os.Getenv("SONICHASH_ACTIONS_LOCK_PATH"))
	setString(&settings.PersonaDir, os.Getenv("SONICHASH_PERSONA_DIR"))
	setString(&settings.ListenAddr, os.Getenv("SONICHASH_LISTEN"))
	if v := os.Getenv("PORT"); v != "" && os.Getenv("SONICHASH_LISTEN") == "" {
		settings.ListenAddr = ":" + v
	}
	if v := os.Getenv("SONICHASH_ENABLE_ACTIONS"); v != "" {
		settings.EnableActions = splitCSV(v)
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitCSV(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableActions) != "" {
		settings.EnableActions = splitCSV(flags.EnableActions)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.LogFormat, flags.LogFormat)
	setString(&settings.RPCURL, flags.RPCURL)
	setString(&settings.PersonaDir, flags.PersonaDir)

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func validate(settings Settings) error {
	for name, endpoint := range map[string]string{
		"llm base url":       settings.LLMBaseURL,
		"coingecko base url": settings.CoinGeckoBaseURL,
		"allora base url":    settings.AlloraBaseURL,
	} {
		if !registry.IsAllowedUpstreamURL(endpoint) {
			return fmt.Errorf("%s %q must use https (plain http is only allowed for loopback hosts)", name, endpoint)
		}
	}
	if settings.SwapRouter != "" && !registry.IsAddress(settings.SwapRouter) {
		return fmt.Errorf("swap router %q is not a valid address", settings.SwapRouter)
	}
	if settings.SwapSlippageBP < 0 || settings.SwapSlippageBP >= 10_000 {
		return fmt.Errorf("slippage_bps must be in [0, 10000)")
	}
	switch settings.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console")
	}
	return nil
}

func parseDurationInto(raw, name string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	*dst = d
	return nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// setAPIKey applies an inline key, then lets api_key_env point at another
// environment variable.
func setAPIKey(dst *string, key, keyEnv string) {
	setString(dst, key)
	if keyEnv != "" {
		setString(dst, os.Getenv(keyEnv))
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(raw string) []string {
	return normalizeList(strings.Split(raw, ","))
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}
