// Package report renders the outcome of the rewrite pass for the build log
// and for report files.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/fulmenhq/cdnimg/internal/rewrite"
	"github.com/fulmenhq/cdnimg/pkg/safeio"
	"github.com/mattn/go-runewidth"
)

// Format is a report output format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// FormatForPath picks the format from a file extension; text otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return FormatMarkdown
	case ".json":
		return FormatJSON
	default:
		return FormatText
	}
}

// Report is the rewrite outcome of one build.
type Report struct {
	BuildID      string          `json:"build_id"`
	GeneratedAt  time.Time       `json:"generated_at"`
	DeliveryType string          `json:"delivery_type"`
	Folder       string          `json:"folder"`
	Documents    int             `json:"documents"`
	Changed      int             `json:"changed"`
	Replaced     int             `json:"replaced"`
	Duration     time.Duration   `json:"duration_ns"`
	Errors       []rewrite.Error `json:"errors"`
}

// FromSummary builds a report from a RewriteDir summary.
func FromSummary(buildID, deliveryType, folder string, s *rewrite.Summary) Report {
	r := Report{
		BuildID:      buildID,
		GeneratedAt:  time.Now().UTC(),
		DeliveryType: deliveryType,
		Folder:       folder,
		Errors:       []rewrite.Error{},
	}
	if s != nil {
		r.Documents = len(s.Documents)
		r.Changed = s.Changed
		r.Replaced = s.Replaced
		r.Duration = s.Duration
		r.Errors = append(r.Errors, s.Errors...)
	}
	return r
}

// Render formats the report.
func (r Report) Render(format Format) (string, error) {
	switch format {
	case FormatText, "":
		return r.text(), nil
	case FormatMarkdown:
		return r.markdown()
	case FormatJSON:
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode report: %w", err)
		}
		return string(b) + "\n", nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

// Write renders the report in the format implied by path and writes it.
func (r Report) Write(path string) error {
	out, err := r.Render(FormatForPath(path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := safeio.WriteFilePreservePerms(path, []byte(out)); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func (r Report) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrote %d of %d documents, %d image references replaced, %d errors\n",
		r.Changed, r.Documents, r.Replaced, len(r.Errors))
	if len(r.Errors) == 0 {
		return b.String()
	}

	rows := make([][2]string, 0, len(r.Errors)+1)
	rows = append(rows, [2]string{"DOCUMENT", "REASON"})
	for _, e := range r.Errors {
		rows = append(rows, [2]string{e.DocumentPath, e.Reason})
	}
	width := 0
	for _, row := range rows {
		if w := runewidth.StringWidth(row[0]); w > width {
			width = w
		}
	}
	for _, row := range rows {
		b.WriteString("  ")
		b.WriteString(runewidth.FillRight(row[0], width))
		b.WriteString("  ")
		b.WriteString(row[1])
		b.WriteByte('\n')
	}
	return b.String()
}

const markdownSource = `# Image rewrite report

| | |
|---|---|
| Build | ` + "`{{buildID}}`" + ` |
| Delivery type | {{deliveryType}} |
| Folder | {{folder}} |
| Documents | {{documents}} |
| Rewritten | {{changed}} |
| Images replaced | {{replaced}} |
| Errors | {{errorCount}} |
{{#if (gt errorCount 0)}}
## Errors

| Document | Reason |
|---|---|
{{#each errors}}
| {{{document}}} | {{{reason}}} |
{{/each}}
{{else}}
All image references were rewritten.
{{/if}}`

var markdownTemplate = func() *raymond.Template {
	tpl := raymond.MustParse(markdownSource)
	tpl.RegisterHelper("gt", func(a, b interface{}) bool {
		aVal, _ := strconv.Atoi(fmt.Sprintf("%v", a))
		bVal, _ := strconv.Atoi(fmt.Sprintf("%v", b))
		return aVal > bVal
	})
	return tpl
}()

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ")

func (r Report) markdown() (string, error) {
	errs := make([]map[string]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, map[string]string{
			"document": cellEscaper.Replace(e.DocumentPath),
			"reason":   cellEscaper.Replace(e.Reason),
		})
	}
	out, err := markdownTemplate.Exec(map[string]interface{}{
		"buildID":      r.BuildID,
		"deliveryType": r.DeliveryType,
		"folder":       r.Folder,
		"documents":    r.Documents,
		"changed":      r.Changed,
		"replaced":     r.Replaced,
		"errorCount":   len(r.Errors),
		"errors":       errs,
	})
	if err != nil {
		return "", fmt.Errorf("render markdown report: %w", err)
	}
	return out, nil
}
