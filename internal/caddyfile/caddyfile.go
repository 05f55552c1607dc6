// Package caddyfile renders the resolved ingress entries into Caddy's
// native configuration format. Generation goes through text/template rather
// than a Caddy-config-model library: the pack carries no ecosystem library
// for producing Caddyfile syntax (Caddy's own config packages model the JSON
// admin API, not this human-edited text format), and the template is a
// handful of lines with no conditional logic complex enough to warrant a
// hand-rolled writer.
package caddyfile

import (
	"strings"
	"text/template"

	"github.com/h2compose/h2compose/internal/convert/pipectx"
)

var tmpl = template.Must(template.New("caddyfile").Parse(`{{- range $i, $site := .Sites }}
{{ $site.Host }} {
{{- range $site.Routes }}
	route {{ .Path }} {
		reverse_proxy {{ .Upstream }}{{ if .TLS }} {
			transport http {
				tls
			}
		}{{ end }}
{{- range .Directives }}
		{{ . }}
{{- end }}
	}
{{- end }}
}
{{ end -}}
`))

type templateData struct {
	Sites []pipectx.IngressEntry
}

// Render produces the Caddyfile text for entries, in the order given — the
// Pipeline Driver is responsible for any host-level ordering.
func Render(entries []pipectx.IngressEntry) (string, error) {
	var b strings.Builder

	if err := tmpl.Execute(&b, templateData{Sites: entries}); err != nil {
		return "", err
	}

	return b.String(), nil
}
