package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidate_ThresholdOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.FallbackThreshold = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for fallbackThreshold=1.5")
	}

	cfg = Defaults()
	cfg.Engine.ClarifyThreshold = -0.1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for clarifyThreshold=-0.1")
	}
}

func TestValidate_ThresholdBoundary(t *testing.T) {
	cfg := Defaults()

	cfg.Engine.FallbackThreshold = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("fallbackThreshold=0 should be valid: %v", err)
	}

	cfg.Engine.FallbackThreshold = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("fallbackThreshold=1 should be valid: %v", err)
	}
}

func TestValidate_ConcurrencyOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.MaxConcurrentMessages = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=0")
	}

	cfg.Engine.MaxConcurrentMessages = 999
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=999")
	}
}

func TestValidate_AIEnabledNeedsAPIBase(t *testing.T) {
	cfg := Defaults()
	cfg.AI.Enabled = true
	cfg.AI.APIBase = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled AI without apiBase")
	}
}

func TestValidate_AITimeout(t *testing.T) {
	cfg := Defaults()
	cfg.AI.TimeoutSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for ai.timeoutSeconds=0")
	}
}

func TestValidate_TelegramEnabledNeedsToken(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for enabled telegram without token")
	}
}

func TestValidate_EmptyDBPath(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty dbPath")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.AI.Model = "test-model"
	original.Storage.DBPath = filepath.Join(dir, "sitebot.db")

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.AI.Model != "test-model" {
		t.Fatalf("expected 'test-model', got %q", loaded.AI.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"ai": {"model": "custom"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.Model != "custom" {
		t.Fatalf("expected overridden model, got %q", cfg.AI.Model)
	}
	if cfg.Engine.FallbackThreshold != 0.6 {
		t.Fatalf("expected default fallbackThreshold, got %v", cfg.Engine.FallbackThreshold)
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"engine": {
			"maxConcurrentMessages": 0
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for maxConcurrentMessages=0")
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "ai.model")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "llama3.1:8b" {
		t.Fatalf("expected 'llama3.1:8b', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "ai.model", "qwen2.5:7b"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.AI.Model != "qwen2.5:7b" {
		t.Fatalf("expected 'qwen2.5:7b', got %q", cfg.AI.Model)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "ai.enabled", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if !cfg.AI.Enabled {
		t.Fatal("expected ai.enabled=true")
	}
}

func TestSetByPath_FloatConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "engine.fallbackThreshold", "0.75"); err != nil {
		t.Fatalf("set float: %v", err)
	}
	if cfg.Engine.FallbackThreshold != 0.75 {
		t.Fatalf("expected 0.75, got %v", cfg.Engine.FallbackThreshold)
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "engine.maxConcurrentMessages", "7"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Engine.MaxConcurrentMessages != 7 {
		t.Fatalf("expected 7, got %d", cfg.Engine.MaxConcurrentMessages)
	}
}

// --- Sanitize ---

func TestSanitize_MasksTelegramToken(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"

	sanitized := Sanitize(cfg)

	if sanitized.Channels.Telegram.Token == cfg.Channels.Telegram.Token {
		t.Fatal("telegram token should be masked")
	}
	// Verify original is untouched
	if cfg.Channels.Telegram.Token != "123456789:ABCdefGHIjklMNOpqrSTUvwxyz" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "short"
	sanitized := Sanitize(cfg)
	if sanitized.Channels.Telegram.Token != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Channels.Telegram.Token)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}

	// Check some known paths exist
	for _, expected := range []string{"general.dataDir", "general.logLevel", "engine.autoRegister", "storage.dbPath"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	input := `["hello", 123, "world", 456.0]`
	var list FlexStringList
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 items, got %d", len(list))
	}
	if list[0] != "hello" || list[2] != "world" {
		t.Fatal("string items mismatch")
	}
	if list[1] != "123" || list[3] != "456" {
		t.Fatalf("number conversion mismatch: %v", list)
	}
}

func TestFlexStringList_PureStrings(t *testing.T) {
	input := `["a", "b", "c"]`
	var list FlexStringList
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 3 || list[0] != "a" {
		t.Fatalf("unexpected: %v", list)
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "123:abc")
	result := ExpandEnvVars(`{"token": "${TEST_BOT_TOKEN}"}`)
	expected := `{"token": "123:abc"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"model": "${NONEXISTENT_VAR_12345:-llama3.1:8b}"}`)
	expected := `{"model": "llama3.1:8b"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_MODEL", "qwen2.5:7b")
	result := ExpandEnvVars(`{"model": "${MY_MODEL:-llama3.1:8b}"}`)
	expected := `{"model": "qwen2.5:7b"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_NoVarsInInput(t *testing.T) {
	input := `{"key": "value", "number": 42}`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change, got %q", result)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_SITEBOT_DB", "/tmp/test-sitebot.db")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"storage": {
			"dbPath": "${TEST_SITEBOT_DB}"
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.DBPath != "/tmp/test-sitebot.db" {
		t.Fatalf("expected dbPath '/tmp/test-sitebot.db', got %q", cfg.Storage.DBPath)
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if cfg == nil {
		t.Fatal("defaults returned nil")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Engine.FallbackThreshold != 0.6 {
		t.Fatalf("expected fallbackThreshold 0.6, got %v", cfg.Engine.FallbackThreshold)
	}
	if !cfg.Engine.AutoRegister {
		t.Fatal("autoRegister should default to true")
	}
	if cfg.AI.Enabled {
		t.Fatal("AI should be disabled by default")
	}
}
