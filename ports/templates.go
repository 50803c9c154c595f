package ports

import (
	"xelimit/domain/histogram"
)

// TemplateStore looks up density templates by exact name.
//
// Returned templates are shared and must be treated as read-only; callers
// clone before scaling or adding.
type TemplateStore interface {
	// Template returns the named template or an error wrapping
	// core.ErrTemplateNotFound.
	Template(name string) (*histogram.Hist2D, error)

	// Has reports whether a template exists.
	Has(name string) bool

	// Names lists the stored template names.
	Names() []string
}

// TemplateSource opens a container of templates by path.
type TemplateSource interface {
	Open(path string) (TemplateStore, error)
}
