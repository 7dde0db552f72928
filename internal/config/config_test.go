package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Discord.Token = "bot-token-abcdefgh"
	cfg.Request.Channels = []string{"req-1", "req-2"}
	cfg.Request.InternalChannels = []string{"int-1", "int-2"}
	cfg.Request.RequestLimits = []int{3, -1}
	cfg.Request.TestingRequestChannels = []string{"test-1"}
	cfg.Modmail.Enabled = true
	cfg.Modmail.Channel = "modmail"
	return cfg
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_MisalignedInternalChannels(t *testing.T) {
	cfg := validConfig()
	cfg.Request.InternalChannels = []string{"int-1"}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for misaligned internal channels")
	}
}

func TestValidate_MisalignedLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Request.RequestLimits = []int{1}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for misaligned request limits")
	}

	cfg.Request.RequestLimits = nil
	if err := Validate(cfg); err != nil {
		t.Fatalf("empty request limits should be valid: %v", err)
	}
}

func TestValidate_ModmailWithoutChannel(t *testing.T) {
	cfg := validConfig()
	cfg.Modmail.Channel = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for modmail without channel")
	}

	cfg.Modmail.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled modmail needs no channel: %v", err)
	}
}

func TestValidate_TicketURL(t *testing.T) {
	for _, u := range []string{"https://example.com/", "https://example.com/%s/%s"} {
		cfg := validConfig()
		cfg.Commands.TicketURL = u
		if err := Validate(cfg); err == nil {
			t.Fatalf("expected error for ticket url %q", u)
		}
	}
}

func TestValidate_LoggingLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	cfg.Commands.Prefix = " "
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"logging.format", "commands.prefix", "metrics.listen"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := validConfig()
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !reflect.DeepEqual(loaded.Request, original.Request) {
		t.Fatalf("request config mismatch:\n got %+v\nwant %+v", loaded.Request, original.Request)
	}
	if loaded.Modmail != original.Modmail {
		t.Fatalf("modmail config mismatch: got %+v", loaded.Modmail)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
discord:
  token: abc
request:
  channels: ["100", "200"]
  internal_channels: ["101", "201"]
  request_limits: [5, -1]
  testing_request_channels: ["300"]
modmail:
  enabled: true
  channel: "400"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "abc" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
	if got := cfg.InternalChannelMap(); got["100"] != "101" || got["200"] != "201" {
		t.Errorf("internal channel map = %v", got)
	}
	if got := cfg.RequestLimitMap(); got["100"] != 5 || got["200"] != -1 {
		t.Errorf("request limit map = %v", got)
	}
	// Defaults survive for keys absent from the file.
	if cfg.Commands.Prefix != "!jira" {
		t.Errorf("expected default prefix, got %q", cfg.Commands.Prefix)
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "discord": {"token": "abc"},
  "request": {"testing_request_channels": ["300"]},
  "modmail": {"enabled": false}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Request.TestingRequestChannels) != 1 || cfg.Request.TestingRequestChannels[0] != "300" {
		t.Errorf("testing channels = %v", cfg.Request.TestingRequestChannels)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TRIAGEBOT_DISCORD_TOKEN", "from-env")
	t.Setenv("TRIAGEBOT_MODMAIL_CHANNEL", "999")
	path := writeFile(t, "config.yaml", "discord:\n  token: from-file\nmodmail:\n  enabled: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "from-env" {
		t.Errorf("token = %q, want from-env", cfg.Discord.Token)
	}
	if cfg.Modmail.Channel != "999" {
		t.Errorf("modmail channel = %q, want 999", cfg.Modmail.Channel)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_DISCORD_TOKEN", "expanded-token")
	path := writeFile(t, "config.yaml", "discord:\n  token: ${TEST_DISCORD_TOKEN}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "expanded-token" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "discord: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", "modmail:\n  enabled: true\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "modmail.channel") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- routing helpers ---

func TestInternalProgressChannels_Dedup(t *testing.T) {
	cfg := validConfig()
	cfg.Request.Channels = []string{"a", "b", "c"}
	cfg.Request.InternalChannels = []string{"int", "int", "int-2"}

	got := cfg.InternalProgressChannels()
	want := []string{"int", "int-2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestOverlaps(t *testing.T) {
	cfg := validConfig()
	if o := cfg.Overlaps(); len(o) != 0 {
		t.Fatalf("expected no overlaps, got %v", o)
	}

	cfg.Request.TestingRequestChannels = append(cfg.Request.TestingRequestChannels, "req-1")
	o := cfg.Overlaps()
	if len(o) != 1 || !strings.Contains(o[0], "req-1") {
		t.Fatalf("expected overlap on req-1, got %v", o)
	}
}

func TestSanitize_MasksToken(t *testing.T) {
	cfg := validConfig()
	s := Sanitize(cfg)
	if s.Discord.Token == cfg.Discord.Token {
		t.Fatal("token should be masked")
	}
	if !strings.HasPrefix(s.Discord.Token, "bot-") {
		t.Fatalf("unexpected mask: %q", s.Discord.Token)
	}
	if cfg.Discord.Token != "bot-token-abcdefgh" {
		t.Fatal("original config must not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Discord.Token = "short"
	if got := Sanitize(cfg).Discord.Token; got != "***" {
		t.Fatalf("expected '***', got %q", got)
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_TOKEN", "tok-abc123")
	result := ExpandEnvVars(`token: ${TEST_TOKEN}`)
	expected := `token: tok-abc123`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`listen: ${NONEXISTENT_VAR_12345:-:9464}`)
	expected := `listen: :9464`
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

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`)
	expected := `"fallback"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}
