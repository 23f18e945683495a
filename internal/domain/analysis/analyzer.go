package analysis

import (
	"context"

	"github.com/bryanwahyu/automaton-review/internal/domain/review"
)

// Unit is one (file, analyzer) work assignment. Ephemeral: created at
// fan-out time, discarded once its result is merged.
type Unit struct {
	FilePath     string
	Language     string
	Content      string
	ChangedLines []int
	// RepoContext is opaque background text for the AI analyzer.
	RepoContext string
}

// Analyzer port. Implementations must be pure over their input plus
// analyzer-local configuration and must honor ctx cancellation; the
// scheduler enforces the per-unit deadline, not the analyzer.
type Analyzer interface {
	Name() string
	Applicable(language string) bool
	Analyze(ctx context.Context, u Unit) ([]review.RawFinding, error)
}

// Registry holds the analyzers registered at startup. Dispatch iterates
// the registered set; no runtime type inspection.
type Registry struct {
	analyzers []Analyzer
}

func NewRegistry(analyzers ...Analyzer) *Registry {
	return &Registry{analyzers: analyzers}
}

func (r *Registry) Register(a Analyzer) {
	r.analyzers = append(r.analyzers, a)
}

// All returns every registered analyzer.
func (r *Registry) All() []Analyzer {
	return r.analyzers
}

// For returns the analyzers that declare themselves applicable to language.
func (r *Registry) For(language string) []Analyzer {
	var out []Analyzer
	for _, a := range r.analyzers {
		if a.Applicable(language) {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.analyzers) }
