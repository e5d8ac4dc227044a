// Package templates renders the HTML pages of the web server.
package templates

import (
	"context"
	"fmt"
	"html"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/ddrcsv/internal/core"
)

var esc = html.EscapeString

// JobPage shows a background batch. It refreshes every two seconds until
// the job is done.
func JobPage(st core.JobStatus) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		refresh := ""
		if !st.Done {
			refresh = `<meta http-equiv="refresh" content="2">`
		}
		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html><head><meta charset="utf-8">%s<title>Import %s</title></head><body>`,
			refresh, esc(st.ID)); err != nil {
			return err
		}
		fmt.Fprintf(w, `<h1>%s import into %s</h1>`, esc(string(st.Kind)), esc(st.Collection))
		fmt.Fprintf(w, `<p>%s &middot; phase <strong>%s</strong> &middot; %d of %d rows</p>`,
			esc(st.CSVPath), esc(string(st.Progress.Phase)), st.Progress.Done, st.Progress.Total)

		if st.Error != nil {
			if err := ErrorAlert(st.Error.Message, st.Error.Action, st.Error.Code).Render(context.Background(), w); err != nil {
				return err
			}
		}
		if st.Report != nil {
			writeReport(w, st.Report)
		}
		_, err := fmt.Fprintf(w, `<footer>started %s</footer></body></html>`, st.Started.Format(time.RFC3339))
		return err
	})
}

func writeReport(w io.Writer, rep *core.Report) {
	if rep.Abort != "" {
		fmt.Fprintf(w, `<pre>%s</pre>`, esc(rep.Abort))
	}
	for _, p := range rep.Problems {
		fmt.Fprintf(w, `<p class="problem">%s</p>`, esc(p.String()))
	}
	fmt.Fprintf(w, `<p>%d imported, %d failed</p>`, rep.Succeeded, rep.Failed)

	failed := rep.FailedRows()
	if len(failed) == 0 {
		return
	}
	io.WriteString(w, `<table><tr><th>Line</th><th>ID</th><th>Error</th></tr>`)
	for _, o := range failed {
		fmt.Fprintf(w, `<tr><td>%d</td><td>%s</td><td>%s</td></tr>`, o.Line, esc(o.ID), esc(o.Error))
	}
	io.WriteString(w, `</table>`)
}

// ErrorAlert is a user-facing error box.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="error" role="alert"><p>%s <code>%s</code></p><p>%s</p></div>`,
			esc(message), esc(code), esc(action))
		return err
	})
}
