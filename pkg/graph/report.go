package graph

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/nicktill/tracedump/pkg/aggregate"
	"github.com/nicktill/tracedump/pkg/series"
)

// Section is one chart of the report.
type Section struct {
	ID    string
	Title string
	Image string // path relative to the page
}

// Report is the HTML index of a set of charts.
type Report struct {
	Title    string
	Sections []Section
}

var reportTmpl = template.Must(template.New("report").Parse(`<html>
  <head><title>{{.Title}}</title></head>
  <body style="width: 820px; margin-right: auto; margin-left: auto">
    <h1 id="index">Index</h1>
    <ul>
{{- range .Sections}}
      <li><a href="#{{.ID}}">{{.Title}}</a></li>
{{- end}}
    </ul>
{{- range .Sections}}
    <h1 id="{{.ID}}">{{.Title}}</h1>
    <p><img src="{{.Image}}" alt="Rate for {{.Title}}" /></p>
    <p style="font-size: smaller; text-align: right"><a href="#index">back to index</a></p>
{{- end}}
  </body>
</html>
`))

// Write renders the page.
func (r *Report) Write(w io.Writer) error {
	if err := reportTmpl.Execute(w, r); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// Build emits the global chart and one chart per endpoint next to base,
// then writes <base>.html. Charts are emitted in key order.
func Build(ctx context.Context, emitter Emitter, agg *aggregate.Aggregator, base string) (*Report, error) {
	if _, _, ok := agg.Range(); !ok {
		return nil, fmt.Errorf("no data events to plot")
	}
	if err := agg.CheckSpan(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(base)
	report := &Report{Title: filepath.Base(base)}

	emit := func(name, id string, rows []series.Row) error {
		path := filepath.Join(dir, id)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emitter.Emit(ctx, name, path, rows); err != nil {
			return err
		}
		report.Sections = append(report.Sections, Section{
			ID:    id,
			Title: name,
			Image: id + ".png",
		})
		return nil
	}

	global, err := agg.FinalizeGlobal()
	if err != nil {
		return nil, err
	}
	if err := emit(series.GlobalKey, filepath.Base(base)+"_"+series.GlobalKey, global); err != nil {
		return nil, err
	}
	for _, key := range agg.Keys() {
		rows, err := agg.Finalize(key)
		if err != nil {
			return nil, err
		}
		if err := emit(key, FileName(key), rows); err != nil {
			return nil, err
		}
	}

	f, err := os.Create(base + ".html")
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	if err := report.Write(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close report: %w", err)
	}
	return report, nil
}
