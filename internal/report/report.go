// Package report renders the aggregate usage snapshot as a self-contained
// HTML document.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goodtune/focustrack/internal/usage"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var documentTemplate = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

const (
	// DefaultTitle heads the document and the chart
	DefaultTitle = "App Usage Time Distribution (seconds)"

	// DefaultChartJSURL is where the browser loads the charting library
	DefaultChartJSURL = "https://cdn.jsdelivr.net/npm/chart.js"

	generatedLayout = "2006-01-02 15:04:05"
)

// palette colours slices in order and repeats for long reports
var palette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
}

// Options controls document presentation
type Options struct {
	Title      string
	ChartJSURL string
	// GeneratedAt is printed in the footer when set.
	GeneratedAt time.Time
}

// Entry is one application's slice of the report
type Entry struct {
	App     usage.AppID
	Seconds uint64
	Color   string
	Share   float64
}

// Document is a rendered report
type Document struct {
	// Entries are ordered by descending time, then by name.
	Entries []Entry
	Total   uint64
	HTML    []byte
}

type entryView struct {
	Label       string
	Seconds     string
	Duration    string
	Percent     string
	BarStyle    template.CSS
	SwatchStyle template.CSS
}

type documentView struct {
	Title         string
	ChartJSURL    string
	GeneratedAt   string
	Entries       []entryView
	Labels        []string
	Values        []uint64
	Colors        []string
	TotalSeconds  string
	TotalDuration string
}

// Render builds the document for snapshot. Output depends only on its
// arguments, and every application name is escaped for the context it
// appears in.
func Render(snapshot usage.Snapshot, opts Options) (Document, error) {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}

	entries := Entries(snapshot)
	total := snapshot.Total()

	view := documentView{
		Title:         opts.Title,
		ChartJSURL:    opts.ChartJSURL,
		Labels:        make([]string, 0, len(entries)),
		Values:        make([]uint64, 0, len(entries)),
		Colors:        make([]string, 0, len(entries)),
		TotalSeconds:  humanize.Comma(int64(total)),
		TotalDuration: formatDuration(total),
	}
	if !opts.GeneratedAt.IsZero() {
		view.GeneratedAt = opts.GeneratedAt.Format(generatedLayout)
	}

	for _, e := range entries {
		view.Labels = append(view.Labels, string(e.App))
		view.Values = append(view.Values, e.Seconds)
		view.Colors = append(view.Colors, e.Color)
		view.Entries = append(view.Entries, entryView{
			Label:       string(e.App),
			Seconds:     humanize.Comma(int64(e.Seconds)),
			Duration:    formatDuration(e.Seconds),
			Percent:     humanize.FormatFloat("#,###.#", e.Share) + "%",
			BarStyle:    template.CSS(fmt.Sprintf("width:%.4f%%;background:%s", e.Share, e.Color)),
			SwatchStyle: template.CSS("background:" + e.Color),
		})
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, view); err != nil {
		return Document{}, fmt.Errorf("render report: %w", err)
	}

	return Document{Entries: entries, Total: total, HTML: buf.Bytes()}, nil
}

// Entries orders a snapshot for display and assigns colours and shares.
func Entries(snapshot usage.Snapshot) []Entry {
	entries := make([]Entry, 0, len(snapshot))
	for app, secs := range snapshot {
		entries = append(entries, Entry{App: app, Seconds: secs})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Seconds != entries[j].Seconds {
			return entries[i].Seconds > entries[j].Seconds
		}
		return entries[i].App < entries[j].App
	})

	total := snapshot.Total()
	for i := range entries {
		entries[i].Color = palette[i%len(palette)]
		if total > 0 {
			entries[i].Share = float64(entries[i].Seconds) * 100 / float64(total)
		}
	}
	return entries
}

func formatDuration(secs uint64) string {
	return (time.Duration(secs) * time.Second).String()
}
