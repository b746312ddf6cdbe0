package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "out")
	otherDir := filepath.Join(tmpDir, "elsewhere")
	for _, d := range []string{safeDir, otherDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}
	link := filepath.Join(safeDir, "link")
	if err := os.Symlink(otherDir, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		wantError bool
	}{
		{"new file", filepath.Join(safeDir, "frame.png"), false},
		{"new nested file", filepath.Join(safeDir, "night1", "report.html"), false},
		{"the directory itself", safeDir, false},
		{"dot dot escape", filepath.Join(safeDir, "..", "frame.png"), true},
		{"absolute path outside", "/etc/passwd", true},
		{"through symlink", filepath.Join(link, "frame.png"), true},
		{"symlink itself", link, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, safeDir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantError %v", tt.filePath, err, tt.wantError)
			}
			if err != nil && !errors.Is(err, ErrPathEscapes) {
				t.Errorf("error %v is not ErrPathEscapes", err)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()

	if err := ValidatePathWithinAllowedDirs(filepath.Join(b, "x.png"), []string{a, b}); err != nil {
		t.Errorf("path in second dir rejected: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs("/etc/x.png", []string{a, b}); !errors.Is(err, ErrPathEscapes) {
		t.Errorf("expected ErrPathEscapes, got %v", err)
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(a, "x.png"), nil); err == nil {
		t.Error("expected error with no allowed dirs")
	}
}

func TestValidateOutputPath(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name      string
		path      string
		exts      []string
		wantError bool
	}{
		{"temp png", filepath.Join(tmp, "frame.png"), []string{".png"}, false},
		{"extension case", filepath.Join(tmp, "FRAME.PNG"), []string{".png"}, false},
		{"any extension", filepath.Join(tmp, "frame.bin"), nil, false},
		{"relative in cwd", "frame.png", []string{".png", ".svg"}, false},
		{"wrong extension", filepath.Join(tmp, "frame.jpg"), []string{".png", ".svg"}, true},
		{"outside", "/etc/frame.png", []string{".png"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputPath(tt.path, tt.exts...)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateOutputPath(%q) error = %v, wantError %v", tt.path, err, tt.wantError)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"field.dat", "field.dat"},
		{"/data/night 1/field.dat", "data_night_1_field.dat"},
		{"..//..", "unknown"},
		{"", "unknown"},
		{"m42 (orion)", "m42_orion"},
		{"ümlaut", "mlaut"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
