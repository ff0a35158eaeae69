package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		viper.Reset()
		configPathOverride = ""

		if err := Init(); err != nil {
			t.Errorf("Init() failed: %v", err)
		}

		config := Get()
		if config == nil {
			t.Fatal("Get() returned nil after Init()")
		}
		if config.Display.RoundtripTimeout != 5 {
			t.Errorf("Expected default roundtrip_timeout 5, got %d", config.Display.RoundtripTimeout)
		}
		if config.Output.JSON {
			t.Error("JSON output should default to false")
		}
	})

	t.Run("reads values from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "wlkit.toml")
		content := `[display]
name = "wayland-7"
roundtrip_timeout = 2

[output]
json = true
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		viper.Reset()
		SetConfigPath(path)
		defer SetConfigPath("")

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}

		config := Get()
		if config.Display.Name != "wayland-7" {
			t.Errorf("Expected display name wayland-7, got %q", config.Display.Name)
		}
		if config.Display.RoundtripTimeout != 2 {
			t.Errorf("Expected roundtrip_timeout 2, got %d", config.Display.RoundtripTimeout)
		}
		if !config.Output.JSON {
			t.Error("Expected json output enabled")
		}
	})

	t.Run("rejects invalid TOML", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "wlkit.toml")
		if err := os.WriteFile(path, []byte("[display\nname = "), 0644); err != nil {
			t.Fatal(err)
		}

		viper.Reset()
		SetConfigPath(path)
		defer SetConfigPath("")

		if err := Init(); err == nil {
			t.Error("Init() should fail on invalid TOML")
		}
	})
}

func TestGetBeforeInit(t *testing.T) {
	old := cfg
	cfg = nil
	defer func() { cfg = old }()

	config := Get()
	if config == nil {
		t.Fatal("Get() must fall back to defaults")
	}
	if config.Display.RoundtripTimeout != DefaultConfig.Display.RoundtripTimeout {
		t.Error("Get() without Init() should return DefaultConfig")
	}
}

func TestGetConfigPath(t *testing.T) {
	SetConfigPath("/tmp/custom.toml")
	defer SetConfigPath("")

	if got := GetConfigPath(); got != "/tmp/custom.toml" {
		t.Errorf("Expected override path, got %q", got)
	}
}
