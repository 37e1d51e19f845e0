package footer

import (
	"bytes"
	"html/template"
)

// Link describes a navigation entry displayed in the footer.
type Link struct {
	Label string
	URL   string
}

// Config captures the markup and style hooks required to render the footer.
type Config struct {
	ElementID      string
	InnerElementID string
	BaseClass      string
	InnerClass     string
	BrandClass     string
	BrandText      string
	ContactClass   string
	ContactLine    string
	TaxIDLine      string
	LinksClass     string
	LinkClass      string
	Links          []Link
}

var (
	footerTemplate = template.Must(template.New("footer").Parse(`<footer id="{{.ElementID}}" class="{{.BaseClass}}">
  <div id="{{.InnerElementID}}" class="{{.InnerClass}}">
    <span class="{{.BrandClass}}">{{.BrandText}}</span>
    {{- if .ContactLine}}
    <span class="{{.ContactClass}}">{{.ContactLine}}</span>
    {{- end}}
    {{- if .TaxIDLine}}
    <span class="{{.ContactClass}}">{{.TaxIDLine}}</span>
    {{- end}}
    {{- if .Links}}
    <ul class="{{.LinksClass}}">
      {{- range .Links}}
      <li><a class="{{$.LinkClass}}" href="{{.URL}}">{{.Label}}</a></li>
      {{- end}}
    </ul>
    {{- end}}
  </div>
</footer>`))
)

// Render returns the footer HTML for the provided configuration.
func Render(config Config) (template.HTML, error) {
	var buffer bytes.Buffer
	if err := footerTemplate.Execute(&buffer, config); err != nil {
		return "", err
	}
	return template.HTML(buffer.String()), nil
}
