package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	defer Init(Config{})

	Info().Msg("hidden")
	Warn().Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn message should be emitted")
	}
}

func TestInit_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "nonsense", Output: &buf})
	defer Init(Config{})

	Info().Msg("emitted")
	if !strings.Contains(buf.String(), "emitted") {
		t.Error("unknown level should fall back to info")
	}
}

func TestWith_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf})
	defer Init(Config{})

	log := With().Str("component", "test").Logger()
	log.Info().Msg("tagged")

	if !strings.Contains(buf.String(), `"component":"test"`) {
		t.Errorf("component field missing from output: %s", buf.String())
	}
}
