package output

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"

	"github.com/propscout/propscout/pkg/models"
)

// WriteMarkdown renders a record as a markdown report: a detail table,
// features, images and the description. HTML in the description is
// converted to markdown.
func WriteMarkdown(w io.Writer, rec *models.PropertyRecord) error {
	var b strings.Builder

	title := "Sem título"
	if rec.Title != nil {
		title = *rec.Title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if rec.Placeholder {
		b.WriteString("> **Aviso:** não foi possível extrair dados reais desta página.\n\n")
	}

	b.WriteString("| Campo | Valor |\n|---|---|\n")
	fmt.Fprintf(&b, "| Site | %s |\n", rec.Site)
	if rec.PropertyID != "" {
		fmt.Fprintf(&b, "| Referência | %s |\n", rec.PropertyID)
	}
	if rec.Price != nil {
		fmt.Fprintf(&b, "| Preço | %.2f € |\n", *rec.Price)
	}
	if rec.Location != nil {
		fmt.Fprintf(&b, "| Localização | %s |\n", *rec.Location)
	}
	if rec.Area != nil {
		fmt.Fprintf(&b, "| Área | %d m² |\n", *rec.Area)
	}
	if rec.Bedrooms != nil {
		fmt.Fprintf(&b, "| Quartos | %d |\n", *rec.Bedrooms)
	}
	if rec.Bathrooms != nil {
		fmt.Fprintf(&b, "| Casas de banho | %d |\n", *rec.Bathrooms)
	}
	if rec.Coordinates != nil {
		fmt.Fprintf(&b, "| Coordenadas | %.6f, %.6f |\n", rec.Coordinates.Lat, rec.Coordinates.Lng)
	}
	fmt.Fprintf(&b, "| Fonte | %s |\n", rec.SourceURL)
	fmt.Fprintf(&b, "| Obtido em | %s |\n\n", rec.RetrievedAt.Format("2006-01-02 15:04"))

	if len(rec.Features) > 0 {
		b.WriteString("## Características\n\n")
		for _, f := range rec.Features {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if len(rec.Images) > 0 {
		b.WriteString("## Imagens\n\n")
		for i, img := range rec.Images {
			fmt.Fprintf(&b, "%d. %s\n", i+1, resolveURL(rec.SourceURL, img))
		}
		b.WriteString("\n")
	}

	if rec.Description != nil {
		desc, err := descriptionMarkdown(*rec.Description)
		if err != nil {
			desc = *rec.Description
		}
		b.WriteString("## Descrição\n\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// SaveMarkdown writes a record's markdown report to a file.
func SaveMarkdown(path string, rec *models.PropertyRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteMarkdown(f, rec)
}

// descriptionMarkdown converts a description to markdown. Plain text
// passes through the converter unchanged.
func descriptionMarkdown(desc string) (string, error) {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return converter.ConvertString(desc)
}

// resolveURL makes a possibly-relative image URL absolute against the
// listing's source URL.
func resolveURL(base, href string) string {
	u, err := url.Parse(href)
	if err != nil || u.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(u).String()
}
