package renderer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateSet executes a structured-body template by identifier.
type TemplateSet interface {
	Execute(w io.Writer, name string, data any) error
}

// Templates is the html/template implementation of TemplateSet.
type Templates struct {
	set map[string]*template.Template
}

var _ TemplateSet = (*Templates)(nil)

func funcMap() template.FuncMap {
	return template.FuncMap{
		"markdown": renderMarkdown,
		"upper":    strings.ToUpper,
	}
}

// DefaultTemplates parses the embedded templates.
func DefaultTemplates() *Templates {
	t := &Templates{set: make(map[string]*template.Template)}
	if err := t.addFS(templateFS, "templates"); err != nil {
		panic(fmt.Sprintf("renderer: embedded templates: %v", err))
	}
	return t
}

// LoadTemplates returns the embedded set extended by every *.html file in dir. A file named like an
// embedded template replaces it. An empty dir yields the embedded set.
func LoadTemplates(dir string) (*Templates, error) {
	t := DefaultTemplates()
	if dir == "" {
		return t, nil
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("load templates from %s: %w", dir, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("load templates from %s: not a directory", dir)
	}
	if err := t.addFS(os.DirFS(dir), "."); err != nil {
		return nil, fmt.Errorf("load templates from %s: %w", dir, err)
	}
	return t, nil
}

func (t *Templates) addFS(fsys fs.FS, root string) error {
	files, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(root, "*.html")))
	if err != nil {
		return err
	}
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".html")
		tmpl, err := template.New(filepath.Base(file)).Funcs(funcMap()).ParseFS(fsys, file)
		if err != nil {
			return fmt.Errorf("parse %s: %w", file, err)
		}
		t.set[name] = tmpl
	}
	return nil
}

// Names lists the available template identifiers.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.set))
	for name := range t.set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute renders the named template.
func (t *Templates) Execute(w io.Writer, name string, data any) error {
	tmpl, ok := t.set[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.Execute(w, data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}
