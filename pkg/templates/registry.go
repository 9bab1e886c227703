// Package templates renders the bot's reply texts from embedded
// text/template files. IDs mirror the file layout under assets/,
// without the .tmpl suffix ("chat/greeting").
package templates

import (
	"bytes"
	"embed"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"text/template"

	"comanda/pkg/errors"
)

//go:embed assets
var embeddedFS embed.FS

// Registry resolves parsed templates by ID. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	templates map[string]*template.Template
}

// NewRegistryFromFS parses every .tmpl file in the filesystem.
func NewRegistryFromFS(filesystem fs.FS) (*Registry, error) {
	r := &Registry{templates: map[string]*template.Template{}}

	err := fs.WalkDir(filesystem, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}

		id := strings.TrimSuffix(path, ".tmpl")
		content, err := fs.ReadFile(filesystem, path)
		if err != nil {
			return errors.Wrapf(err, "read template %s", id)
		}

		parsed, err := template.New(id).Parse(string(content))
		if err != nil {
			return errors.Wrapf(err, "parse template %s", id)
		}

		r.templates[id] = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Get returns the default registry backed by the embedded assets.
func Get() *Registry {
	defaultOnce.Do(func() {
		subFS, err := fs.Sub(embeddedFS, "assets")
		if err == nil {
			defaultRegistry, err = NewRegistryFromFS(subFS)
		}
		defaultErr = err
	})

	if defaultErr != nil {
		panic(defaultErr)
	}

	return defaultRegistry
}

// GetTemplate retrieves a parsed template by its ID.
func (r *Registry) GetTemplate(id string) (*template.Template, error) {
	tmpl, ok := r.templates[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "template %s", id)
	}
	return tmpl, nil
}

// Render executes a template by ID using the provided data.
func (r *Registry) Render(id string, data any) (string, error) {
	tmpl, err := r.GetTemplate(id)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render template %s", id)
	}

	return buf.String(), nil
}

// List returns all known template IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)
