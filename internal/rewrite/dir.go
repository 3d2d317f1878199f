package rewrite

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/fulmenhq/cdnimg/pkg/logger"
	"github.com/fulmenhq/cdnimg/pkg/pathfinder"
	"github.com/fulmenhq/cdnimg/pkg/safeio"
	"golang.org/x/sync/errgroup"
)

// DocumentPattern selects the documents RewriteDir processes.
const DocumentPattern = "**/*.{html,htm}"

// DocumentResult is the outcome for one file.
type DocumentResult struct {
	Path     string  `json:"path"`
	File     string  `json:"file"`
	Changed  bool    `json:"changed"`
	Replaced int     `json:"replaced"`
	Errors   []Error `json:"errors,omitempty"`
}

// Summary aggregates a RewriteDir run. Documents are sorted by path.
type Summary struct {
	Documents []DocumentResult `json:"documents"`
	Changed   int              `json:"changed"`
	Replaced  int              `json:"replaced"`
	Errors    []Error          `json:"errors,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

func (r *Rewriter) workers() int {
	if r.opts.Concurrency > 0 {
		return r.opts.Concurrency
	}
	return runtime.NumCPU()
}

// RewriteDir rewrites every HTML document under outputDir in place. A failure
// in one document never stops the others; the returned error is only for
// discovery problems.
func (r *Rewriter) RewriteDir(ctx context.Context, outputDir string) (*Summary, error) {
	start := time.Now()
	files, err := pathfinder.MatchWithOptions(outputDir, DocumentPattern, r.opts.Match)
	if err != nil {
		return nil, err
	}

	results := make([]DocumentResult, len(files))
	var g errgroup.Group
	g.SetLimit(r.workers())
	for i, file := range files {
		g.Go(func() error {
			results[i] = r.rewriteFile(ctx, outputDir, file)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	summary := &Summary{Documents: results}
	for _, doc := range results {
		if doc.Changed {
			summary.Changed++
		}
		summary.Replaced += doc.Replaced
		summary.Errors = append(summary.Errors, doc.Errors...)
	}
	summary.Duration = time.Since(start)

	fields := []logger.Field{
		logger.Int("documents", len(results)),
		logger.Int("changed", summary.Changed),
		logger.Int("replaced", summary.Replaced),
		logger.Duration("duration", summary.Duration),
	}
	if n := len(summary.Errors); n > 0 {
		r.log.Warn("Some image references could not be rewritten", append(fields, logger.Int("errors", n))...)
	} else {
		r.log.Info("Rewrote documents", fields...)
	}
	return summary, nil
}

// rewriteFile reads, rewrites and writes back one document. The write only
// happens when the content changed.
func (r *Rewriter) rewriteFile(ctx context.Context, outputDir, file string) DocumentResult {
	doc := DocumentResult{File: file, Path: file}
	if p, err := pathfinder.PublishPath(outputDir, file); err == nil {
		doc.Path = p
	}
	fail := func(reason string, err error) DocumentResult {
		doc.Errors = append(doc.Errors, Error{DocumentPath: doc.Path, Reason: reason + ": " + err.Error()})
		r.log.Warn("Document not rewritten", logger.String("document", doc.Path), logger.Err(err))
		return doc
	}

	if err := ctx.Err(); err != nil {
		return fail("skipped", err)
	}
	data, err := safeio.ReadFileContained(outputDir, file)
	if err != nil {
		return fail("read", err)
	}

	res := r.Rewrite(ctx, doc.Path, string(data))
	doc.Replaced = res.Replaced
	doc.Errors = res.Errors
	if res.HTML == string(data) {
		return doc
	}
	if err := safeio.WriteFilePreservePerms(file, []byte(res.HTML)); err != nil {
		return fail("write", err)
	}
	doc.Changed = true
	r.log.Debug("Rewrote document", logger.String("document", doc.Path), logger.Int("replaced", doc.Replaced))
	return doc
}
