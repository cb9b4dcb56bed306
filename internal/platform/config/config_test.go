package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("LSH_TEST_STR", "value")
	if got := GetEnv("LSH_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnv: got %q", got)
	}
	if got := GetEnv("LSH_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv unset: got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LSH_TEST_INT", "42")
	t.Setenv("LSH_TEST_BAD_INT", "forty-two")
	if got := GetEnvInt("LSH_TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvInt: got %d", got)
	}
	if got := GetEnvInt("LSH_TEST_BAD_INT", 1); got != 1 {
		t.Errorf("GetEnvInt invalid should fall back: got %d", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("LSH_TEST_DUR", "750ms")
	t.Setenv("LSH_TEST_BAD_DUR", "soon")
	if got := GetEnvDuration("LSH_TEST_DUR", time.Second); got != 750*time.Millisecond {
		t.Errorf("GetEnvDuration: got %v", got)
	}
	if got := GetEnvDuration("LSH_TEST_BAD_DUR", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration invalid should fall back: got %v", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("LSH_TEST_FLOAT", "2.5")
	if got := GetEnvFloat("LSH_TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("GetEnvFloat: got %v", got)
	}
	if got := GetEnvFloat("LSH_TEST_UNSET", 1); got != 1 {
		t.Errorf("GetEnvFloat unset: got %v", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("LSH_TEST_LIST", "  -i  {channel}\t-q {quality} ")
	want := []string{"-i", "{channel}", "-q", "{quality}"}
	if got := GetEnvList("LSH_TEST_LIST", nil); !reflect.DeepEqual(got, want) {
		t.Errorf("GetEnvList: got %v want %v", got, want)
	}
	t.Setenv("LSH_TEST_BLANK", "   ")
	if got := GetEnvList("LSH_TEST_BLANK", []string{"x"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("GetEnvList blank should fall back: got %v", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LSH_TEST_FROM_FILE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LSH_TEST_FROM_FILE", "")
	os.Unsetenv("LSH_TEST_FROM_FILE")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnv("LSH_TEST_FROM_FILE", ""); got != "loaded" {
		t.Errorf("expected value from env file, got %q", got)
	}

	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Load of a missing file should return an error")
	}
}
