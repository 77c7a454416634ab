package mail

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
)

//go:embed templates
var templatesFS embed.FS

// templates holds one template set per page, each parsed on top of the base
// layout so pages only override the "content" block.
var templates = mustLoadTemplates()

func mustLoadTemplates() map[string]*template.Template {
	pages, err := loadTemplates(templatesFS)
	if err != nil {
		panic(fmt.Sprintf("mail: loading templates: %v", err))
	}
	return pages
}

func loadTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	baseContent, err := fs.ReadFile(fsys, "templates/layouts/base.html")
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(fsys, "templates/pages")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pageContent, err := fs.ReadFile(fsys, "templates/pages/"+entry.Name())
		if err != nil {
			return nil, err
		}

		name := strings.TrimSuffix(entry.Name(), ".html")
		tmpl, err := template.New(name).Parse(string(baseContent))
		if err != nil {
			return nil, err
		}
		if _, err := tmpl.Parse(string(pageContent)); err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		pages[name] = tmpl
	}

	return pages, nil
}

func render(page string, data interface{}) (string, error) {
	tmpl, ok := templates[page]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", page)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s email: %w", page, err)
	}
	return b.String(), nil
}
