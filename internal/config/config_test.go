package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("XDG_DATA_HOME", tmp)
	for _, name := range []string{"SONICHASH_OUTPUT", "SONICHASH_RPC_URL", "SONIC_RPC_URL", "SONICHASH_LISTEN", "PORT", "OPENAI_API_KEY", "SONICHASH_LLM_API_KEY", "ALLORA_API_KEY", "SONICHASH_ALLORA_API_KEY"} {
		t.Setenv(name, "")
	}
	return tmp
}

func TestLoadDefaults(t *testing.T) {
	tmp := isolate(t)
	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.RPCURL != "https://rpc.soniclabs.com" {
		t.Fatalf("expected sonic rpc default, got %q", settings.RPCURL)
	}
	if settings.Retries != 0 {
		t.Fatalf("expected no retries by default, got %d", settings.Retries)
	}
	if settings.PriceTTL != 5*time.Minute || settings.WalletTTL != time.Minute || settings.PredictionTTL != time.Minute {
		t.Fatalf("unexpected cache ttls: %+v", settings)
	}
	if settings.ListenAddr != ":3005" {
		t.Fatalf("unexpected listen addr: %q", settings.ListenAddr)
	}
	if settings.ActionStorePath != filepath.Join(tmp, "sonichash", "actions.db") {
		t.Fatalf("unexpected action store path: %q", settings.ActionStorePath)
	}
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	body := "output: plain\nretries: 1\nchain:\n  rpc_url: https://file.example\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SONICHASH_OUTPUT", "json")
	t.Setenv("SONIC_RPC_URL", "https://env.example")
	flags := GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5}
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.RPCURL != "https://env.example" {
		t.Fatalf("expected env rpc url to override file, got %q", settings.RPCURL)
	}
}

func TestLoadAPIKeyEnvIndirection(t *testing.T) {
	tmp := isolate(t)
	configPath := filepath.Join(tmp, "config.yaml")
	body := "providers:\n  allora:\n    api_key_env: MY_ALLORA\n  llm:\n    api_key: inline-key\n    model: gpt-4o-mini\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MY_ALLORA", "from-env")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.AlloraAPIKey != "from-env" {
		t.Fatalf("expected allora key from indirection, got %q", settings.AlloraAPIKey)
	}
	if settings.LLMAPIKey != "inline-key" || settings.LLMModel != "gpt-4o-mini" {
		t.Fatalf("unexpected llm settings: key=%q model=%q", settings.LLMAPIKey, settings.LLMModel)
	}
}

func TestLoadPortFallback(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "8080")
	settings, err := Load(GlobalFlags{Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.ListenAddr != ":8080" {
		t.Fatalf("expected PORT fallback, got %q", settings.ListenAddr)
	}
}

func TestLoadRejectsInsecureUpstream(t *testing.T) {
	isolate(t)
	t.Setenv("SONICHASH_COINGECKO_BASE_URL", "http://api.coingecko.com/api/v3")
	if _, err := Load(GlobalFlags{Retries: -1}); err == nil {
		t.Fatal("expected error for non-https upstream")
	}
}

func TestLoadRejectsInvalidSwapRouter(t *testing.T) {
	isolate(t)
	t.Setenv("SONICHASH_SWAP_ROUTER", "not-an-address")
	if _, err := Load(GlobalFlags{Retries: -1}); err == nil {
		t.Fatal("expected error for invalid swap router")
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	isolate(t)
	_, err := Load(GlobalFlags{JSON: true, Plain: true})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}
