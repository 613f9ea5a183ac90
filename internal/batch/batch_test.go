package batch

import (
	"bytes"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Import: ImportSettings{Dir: "data/10", Owner: "bob"},
		Environments: []Environment{
			{Name: "staging", Protocol: "http", Host: "localhost", Port: "4000", Username: "admin", Password: "pw"},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg := validConfig()
	cfg.Environments = nil
	if err := cfg.Validate(); err == nil {
		t.Error("empty environments accepted")
	}

	cfg = validConfig()
	cfg.Import.Dir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing import dir accepted")
	}

	cfg = validConfig()
	cfg.Import.Owner = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing owner accepted")
	}

	cfg = validConfig()
	cfg.Environments[0].Protocol = "ftp"
	if err := cfg.Validate(); err == nil {
		t.Error("bad protocol accepted")
	}

	cfg = validConfig()
	cfg.Environments[0].Password = ""
	if err := cfg.Validate(); err == nil {
		t.Error("missing password accepted")
	}
}

func TestPrefixWriter_Lines(t *testing.T) {
	var out bytes.Buffer
	w := newPrefixWriter(&out, "staging")

	if _, err := w.Write([]byte("first line\nsecond line\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "staging: first line\nstaging: second line\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestPrefixWriter_PartialLine(t *testing.T) {
	var out bytes.Buffer
	w := newPrefixWriter(&out, "prod")

	w.Write([]byte("part"))
	if out.Len() != 0 {
		t.Errorf("partial line flushed early: %q", out.String())
	}
	w.Write([]byte("ial\nnext\n"))
	want := "prod: partial\nprod: next\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
