package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple", "main.py", false},
		{"nested", "src/app/main.py", false},
		{"dot segment resolved inside", "src/../main.py", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"absolute", "/etc/passwd", true},
		{"windows absolute", `\windows\system32`, true},
		{"traversal", "../secrets.env", true},
		{"nested traversal", "src/../../secrets.env", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLanguage(t *testing.T) {
	assert.NoError(t, ValidateLanguage("python"))
	assert.NoError(t, ValidateLanguage("Go"))
	assert.NoError(t, ValidateLanguage(""), "empty hint is allowed")
	assert.Error(t, ValidateLanguage("brainfuck"))
}

func TestValidateTenantID(t *testing.T) {
	assert.NoError(t, ValidateTenantID("acme"))
	assert.NoError(t, ValidateTenantID("acme_corp-2"))
	assert.Error(t, ValidateTenantID(""))
	assert.Error(t, ValidateTenantID("has space"))
	assert.Error(t, ValidateTenantID(strings.Repeat("a", 65)))
}

func TestValidateSnippet(t *testing.T) {
	assert.NoError(t, ValidateSnippet("print('hi')"))
	assert.Error(t, ValidateSnippet(""))
	assert.Error(t, ValidateSnippet(strings.Repeat("x", maxSnippetBytes+1)))
}
