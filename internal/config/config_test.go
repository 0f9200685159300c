package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("DEEPGRAM_API_KEY", "dg-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Store.Driver != StoreDriverSQLite {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.LLM.ChatModel != "llama-3.1-70b-versatile" {
		t.Errorf("ChatModel = %q", cfg.LLM.ChatModel)
	}
	if cfg.ThingSpeak.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v, want 15s", cfg.ThingSpeak.PollInterval)
	}
	if cfg.Voice.Endpoint != "http://localhost:8080/voice" {
		t.Errorf("Voice.Endpoint = %q", cfg.Voice.Endpoint)
	}
	if cfg.Capture.Enabled() {
		t.Error("capture should be disabled without cloudinary credentials")
	}
}

func TestLoad_MissingCompletionKeyFailsFast(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("VOICE_AGENT_ENABLED", "false")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when GROQ_API_KEY is missing")
	}
	if !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("error %q does not name the missing key", err)
	}
}

func TestLoad_VoiceAgentRequiresDeepgramKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("VOICE_AGENT_ENABLED", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when the voice agent is enabled without DEEPGRAM_API_KEY")
	}

	t.Setenv("VOICE_AGENT_ENABLED", "false")
	if _, err := Load(); err != nil {
		t.Fatalf("disabled voice agent should not need a Deepgram key: %v", err)
	}
}

func TestLoad_HumeKeyRequiredWhenEnabled(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("VOICE_AGENT_ENABLED", "false")
	t.Setenv("HUME_ENABLED", "true")
	t.Setenv("HUME_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when HUME_API_KEY is missing")
	}
}

func TestLoad_GeminiProviderDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-test")
	t.Setenv("VOICE_AGENT_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Provider != ProviderGemini {
		t.Errorf("Provider = %q, want gemini", cfg.LLM.Provider)
	}
	if !strings.HasPrefix(cfg.LLM.ChatModel, "gemini") {
		t.Errorf("ChatModel = %q, want a gemini model", cfg.LLM.ChatModel)
	}
}

func TestLoad_MongoDriverNeedsURI(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("VOICE_AGENT_ENABLED", "false")
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("MONGODB_URI", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for mongo driver without MONGODB_URI")
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	got := getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil)
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("getEnvAsSlice = %v", got)
	}
}
