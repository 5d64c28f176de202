// Package dashboard renders Grafana dashboards for the exported radio tables.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"iotlab-radio/internal/export"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Data feeds the dashboard templates.
type Data struct {
	Title string
	// Prefix is the name prefix of the exported tables.
	Prefix string
}

// Render renders every dashboard template into outDir. Templates read the
// Grafana datasource uid from the environment through the env function.
func Render(outDir string, data Data) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	if data.Title == "" {
		data.Title = "IoT-LAB radio characterization"
	}
	if data.Prefix == "" {
		data.Prefix = export.TablePrefix
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, e := range names {
		tplName := e.Name()
		t, err := template.New(tplName).Funcs(funcMap).ParseFS(templates, "templates/"+tplName)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(tplName, ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, data); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
