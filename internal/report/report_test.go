package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/goodtune/focustrack/internal/usage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRenderOrdersEntries(t *testing.T) {
	doc, err := Render(usage.Snapshot{"B": 5, "A": 3, "C": 5}, Options{})
	require.NoError(t, err)

	require.Equal(t, uint64(13), doc.Total)
	require.Len(t, doc.Entries, 3)
	require.Equal(t, usage.AppID("B"), doc.Entries[0].App)
	require.Equal(t, usage.AppID("C"), doc.Entries[1].App)
	require.Equal(t, usage.AppID("A"), doc.Entries[2].App)
	require.Equal(t, palette[0], doc.Entries[0].Color)
	require.InDelta(t, 38.46, doc.Entries[0].Share, 0.01)

	html := string(doc.HTML)
	require.Contains(t, html, DefaultTitle)
	require.Contains(t, html, `const labels = ["B","C","A"];`)
	require.Contains(t, html, `const values = [5,5,3];`)
}

func TestRenderIsDeterministic(t *testing.T) {
	snapshot := usage.Snapshot{}
	for i, app := range []usage.AppID{"Firefox", "Terminal", "Code", "Slack", "Mail"} {
		snapshot[app] = uint64(i * 7)
	}
	opts := Options{Title: "Usage", GeneratedAt: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}

	first, err := Render(snapshot, opts)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Render(snapshot, opts)
		require.NoError(t, err)
		require.Equal(t, first.HTML, again.HTML)
	}
}

func TestRenderEscapesAppNames(t *testing.T) {
	hostile := usage.AppID(`</script><script>alert("x")</script>`)
	doc, err := Render(usage.Snapshot{hostile: 4, `Quote's "App"`: 2}, Options{})
	require.NoError(t, err)

	html := string(doc.HTML)
	require.NotContains(t, html, `<script>alert(`)
	require.NotContains(t, html, `alert("x")`)
	require.Contains(t, html, "&lt;/script&gt;&lt;script&gt;alert(&#34;x&#34;)")

	// Inside the script block labels are JSON strings.
	start := strings.Index(html, "const labels = ")
	require.GreaterOrEqual(t, start, 0)
	line := html[start : start+strings.Index(html[start:], "\n")]
	require.NotContains(t, line, "</script>")
	require.Contains(t, line, `\u003c/script\u003e`)
}

func TestRenderEmptySnapshot(t *testing.T) {
	doc, err := Render(usage.Snapshot{}, Options{ChartJSURL: DefaultChartJSURL})
	require.NoError(t, err)

	html := string(doc.HTML)
	require.Empty(t, doc.Entries)
	require.Contains(t, html, "No usage recorded yet.")
	require.Contains(t, html, `const labels = [];`)
	require.Contains(t, html, `src="https://cdn.jsdelivr.net/npm/chart.js"`)
}

func TestRenderOfflineBar(t *testing.T) {
	doc, err := Render(usage.Snapshot{"A": 1, "B": 3}, Options{ChartJSURL: ""})
	require.NoError(t, err)

	html := string(doc.HTML)
	require.NotContains(t, html, "<script src=")
	require.Contains(t, html, "width:75.0000%;background:#4e79a7")
	require.Contains(t, html, "width:25.0000%;background:#f28e2b")
	require.Contains(t, html, "<td class=\"num\">75.0%</td>")
}

func TestPublisherOverwrites(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2026, 10, 18, 9, 0, 0, 0, time.Local)).MustWait(ctx)

	path := filepath.Join(t.TempDir(), "report.html")
	p := NewPublisher(path, Options{Title: "Usage"}, mClock, zerolog.Nop())
	require.Equal(t, path, p.Path())

	require.NoError(t, p.Publish(ctx, usage.Snapshot{"A": 3}))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(first), `const labels = ["A"];`)
	require.Contains(t, string(first), "Generated 2026-10-18 09:00:00")

	require.NoError(t, p.Publish(ctx, usage.Snapshot{"A": 3, "B": 5}))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(second), `const labels = ["B","A"];`)
	require.Equal(t, 1, strings.Count(string(second), "<!DOCTYPE html>"))
}

func TestPublisherMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "report.html")
	p := NewPublisher(path, Options{}, nil, zerolog.Nop())
	require.Error(t, p.Publish(context.Background(), usage.Snapshot{"A": 3}))
}
