package middleware

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// maxSnippetBytes caps manually submitted code so a single request can't
// occupy an analyzer slot indefinitely.
const maxSnippetBytes = 512 * 1024

// knownLanguages is the set of language hints the analyzers understand.
var knownLanguages = map[string]bool{
	"python": true, "py": true,
	"javascript": true, "typescript": true,
	"java": true, "go": true, "rust": true,
	"c": true, "cpp": true, "ruby": true, "php": true,
	"requirements": true,
}

// ValidateLanguage checks the language hint. Empty is allowed; analyzers
// decide applicability themselves.
func ValidateLanguage(language string) error {
	if language == "" {
		return nil
	}
	if !knownLanguages[strings.ToLower(language)] {
		return fmt.Errorf("unsupported language: %s", language)
	}
	return nil
}

// ValidateFilePath rejects empty, absolute and traversal paths.
func ValidateFilePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return fmt.Errorf("file path must be relative: %s", p)
	}
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("file path escapes repository root: %s", p)
	}
	return nil
}

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateTenantID checks tenant identifier format
func ValidateTenantID(tenant string) error {
	if !tenantIDPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant id: %s", tenant)
	}
	return nil
}

// ValidateSnippet bounds the size of submitted code.
func ValidateSnippet(code string) error {
	if code == "" {
		return fmt.Errorf("code cannot be empty")
	}
	if len(code) > maxSnippetBytes {
		return fmt.Errorf("code exceeds %d bytes", maxSnippetBytes)
	}
	return nil
}
