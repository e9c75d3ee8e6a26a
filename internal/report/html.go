package report

import (
	"fmt"
	"html/template"
	"io"

	"nexuspos/backend/internal/domain"
)

var printable = template.Must(template.New("report").Funcs(template.FuncMap{
	"top": func(layout Layout, y float64) string {
		return fmt.Sprintf("%.2fpt", layout.Height-y)
	},
	"pt": func(v float64) string { return fmt.Sprintf("%.2fpt", v) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; font-family: Helvetica, Arial, sans-serif; }
.page { position: relative; width: {{pt .Layout.Width}}; height: {{pt .Layout.Height}}; page-break-after: always; }
.page span { position: absolute; white-space: nowrap; }
.title { font-size: 18pt; font-weight: bold; color: #00804d; }
.heading { font-size: 12pt; font-weight: bold; }
.text { font-size: 10pt; }
.row { font-size: 9pt; }
</style>
</head>
<body>
{{- range .Pages}}
<div class="page" data-page="{{.Number}}">
{{- range .Lines}}
<span class="{{.Style}}" style="left: {{pt .X}}; top: {{top $.Layout .Y}}">{{.Text}}</span>
{{- end}}
</div>
{{- end}}
</body>
</html>
`))

type htmlDocument struct {
	Title  string
	Layout Layout
	Pages  []Page
}

// RenderHTML writes the paginated summary as a printable HTML document.
func RenderHTML(w io.Writer, s domain.ReportSummary, layout Layout) error {
	if layout.Height <= 0 {
		layout = DefaultLayout
	}
	doc := htmlDocument{
		Title:  Filename(s.Kind, s.RangeEnd),
		Layout: layout,
		Pages:  Paginate(s, layout),
	}
	if err := printable.Execute(w, doc); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return nil
}
