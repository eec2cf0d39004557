package transfer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// DefaultExtensions is the allow-list applied when none is configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif"}

// ValidationResult is the outcome of a pre-transfer check. Reason is
// empty when Valid is true.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// Validator checks that a candidate local file exists, is non-empty,
// is readable, and carries an accepted extension. It never returns an
// error: any unexpected I/O failure is folded into the result so
// callers have a single code path.
type Validator struct {
	fs      billy.Filesystem
	allowed map[string]bool
}

// NewValidator creates a validator over the given filesystem. An empty
// extension list falls back to DefaultExtensions.
func NewValidator(fsys billy.Filesystem, extensions []string) *Validator {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[strings.ToLower(ext)] = true
	}
	return &Validator{fs: fsys, allowed: allowed}
}

// Validate runs the checks in order, short-circuiting on the first
// failure. No side effects.
func (v *Validator) Validate(path string) ValidationResult {
	info, err := v.fs.Stat(path)
	if err != nil {
		return ValidationResult{Reason: fmt.Sprintf("file does not exist: %s", path)}
	}
	if info.IsDir() {
		return ValidationResult{Reason: fmt.Sprintf("not a regular file: %s", path)}
	}
	if info.Size() == 0 {
		return ValidationResult{Reason: fmt.Sprintf("file is empty: %s", path)}
	}

	f, err := v.fs.Open(path)
	if err != nil {
		return ValidationResult{Reason: fmt.Sprintf("file is not readable: %v", err)}
	}
	f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if !v.allowed[ext] {
		return ValidationResult{Reason: fmt.Sprintf("unsupported file extension: %q", ext)}
	}

	return ValidationResult{Valid: true}
}
