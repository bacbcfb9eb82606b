package version_test

import (
	"strings"
	"testing"

	"github.com/fermata-audio/fermata/internal/version"
)

func TestVersionInfo(t *testing.T) {
	t.Run("Version should not be empty", func(t *testing.T) {
		if version.Version == "" {
			t.Error("Version should not be empty")
		}
	})

	t.Run("Name should be Fermata", func(t *testing.T) {
		if version.Name != "Fermata" {
			t.Errorf("Expected name 'Fermata', got '%s'", version.Name)
		}
	})
}

func TestGetInfo(t *testing.T) {
	info := version.GetInfo()

	t.Run("should return name", func(t *testing.T) {
		if info.Name != version.Name {
			t.Errorf("Expected name '%s', got '%s'", version.Name, info.Name)
		}
	})

	t.Run("should return version", func(t *testing.T) {
		if info.Version != version.Version {
			t.Errorf("Expected version '%s', got '%s'", version.Version, info.Version)
		}
	})
}

func TestString(t *testing.T) {
	info := version.GetInfo()
	str := info.String()

	if str == "" {
		t.Error("String() should not return empty string")
	}

	if !strings.Contains(str, version.Name) {
		t.Errorf("String() should contain the name: %s", str)
	}
}
