package contextdocs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Provider serves repository background documentation from a local
// directory: one markdown file per repository, named owner__repo.md.
// The engine treats the text as opaque and hands it to the AI analyzer.
type Provider struct {
	dir string
}

func New(dir string) *Provider {
	return &Provider{dir: dir}
}

// Context implements the ContextProvider port. A missing doc is not an
// error; the review just runs without repository background.
func (p *Provider) Context(_ context.Context, repository string) (string, error) {
	if p.dir == "" || repository == "" {
		return "", nil
	}
	name := strings.ReplaceAll(repository, "/", "__") + ".md"
	data, err := os.ReadFile(filepath.Join(p.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
