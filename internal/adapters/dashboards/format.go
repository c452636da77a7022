package dashboards

import (
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"crossfilter/internal/core"
)

// ExportFormat names an artifact encoding.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatHTML ExportFormat = "html"
)

// ParseFormat normalizes a format name.
func ParseFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html"
	default:
		return "application/json"
	}
}

var csvHeader = []string{"series", "x", "y", "label", "size", "hover"}

// writeArtifactCSV writes one row per plotted point.
func writeArtifactCSV(w io.Writer, artifact core.ChartArtifact) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, series := range artifact.Series {
		for _, p := range series.Points {
			record := []string{series.Name, formatFloat(p.X), formatFloat(p.Y), p.Label, formatFloat(p.Size), p.Hover}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func buildHTML(artifact core.ChartArtifact) []byte {
	buf := &strings.Builder{}
	buf.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(artifact.Title))
	buf.WriteString("</title></head><body><h1>")
	buf.WriteString(html.EscapeString(artifact.Title))
	buf.WriteString("</h1>")
	if artifact.Filter != nil {
		buf.WriteString("<p>Years ")
		buf.WriteString(strconv.Itoa(artifact.Filter.Min))
		buf.WriteString("&ndash;")
		buf.WriteString(strconv.Itoa(artifact.Filter.Max))
		buf.WriteString("</p>")
	}
	buf.WriteString("<table><thead><tr>")
	for _, h := range csvHeader {
		buf.WriteString("<th>")
		buf.WriteString(h)
		buf.WriteString("</th>")
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, series := range artifact.Series {
		for _, p := range series.Points {
			buf.WriteString("<tr>")
			for _, cell := range []string{series.Name, formatFloat(p.X), formatFloat(p.Y), p.Label, formatFloat(p.Size), p.Hover} {
				buf.WriteString("<td>")
				buf.WriteString(html.EscapeString(cell))
				buf.WriteString("</td>")
			}
			buf.WriteString("</tr>")
		}
	}
	buf.WriteString("</tbody></table></body></html>")
	return []byte(buf.String())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
