package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rips/rips/internal/domain/catalog"
	"github.com/rips/rips/internal/domain/identity"
	"github.com/rips/rips/internal/platform/textdecode"
)

// File is one named RIPS export. Open is called exactly once per batch.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// BytesFile wraps an in-memory blob.
func BytesFile(name string, data []byte) File {
	return File{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Stats counts what happened to the lines of a batch.
type Stats struct {
	Files          int `json:"files"`
	Lines          int `json:"lines"`
	Markers        int `json:"markers"`
	RosterLines    int `json:"roster_lines"`
	ServiceRecords int `json:"service_records"`
	Skipped        int `json:"skipped"`
}

func (s *Stats) add(o Stats) {
	s.Files += o.Files
	s.Lines += o.Lines
	s.Markers += o.Markers
	s.RosterLines += o.RosterLines
	s.ServiceRecords += o.ServiceRecords
	s.Skipped += o.Skipped
}

// Result is the outcome of a successful batch.
type Result struct {
	Records []ServiceRecord
	Roster  *identity.Roster
	Stats   Stats
}

// partial holds what one file contributed, in line order.
type partial struct {
	records []ServiceRecord
	roster  *identity.Roster
	stats   Stats
}

// Ingester runs whole batches of RIPS files.
type Ingester struct {
	workers int
	logger  zerolog.Logger
}

// NewIngester creates an ingester that parses up to workers files at once.
func NewIngester(workers int, logger zerolog.Logger) *Ingester {
	if workers < 1 {
		workers = 1
	}
	return &Ingester{
		workers: workers,
		logger:  logger.With().Str("component", "ingester").Logger(),
	}
}

// Run ingests files against cat. Files are parsed independently and their
// partial results folded in file order, so the roster merge sees updates in
// exactly the sequence a single sequential pass would. base is cloned and
// never modified; nil starts from an empty roster. Any file failure discards the whole batch.
func (in *Ingester) Run(ctx context.Context, files []File, cat *catalog.Catalog, base *identity.Roster) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if cat == nil {
		return nil, ErrNoCatalog
	}

	partials := make([]*partial, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for i, f := range files {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: file %s: panic: %v", ErrBatchFailed, f.Name, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("%w: file %s: %w", ErrBatchFailed, f.Name, err)
			}
			p, err := parseFile(f, cat)
			if err != nil {
				return fmt.Errorf("%w: file %s: %w", ErrBatchFailed, f.Name, err)
			}
			partials[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		in.logger.Error().Err(err).Int("files", len(files)).Msg("batch discarded")
		return nil, err
	}

	res := &Result{Roster: base.Clone()}
	for i, p := range partials {
		res.Records = append(res.Records, p.records...)
		res.Roster.MergeRoster(p.roster)
		res.Stats.add(p.stats)
		in.logger.Debug().
			Str("file", files[i].Name).
			Int("lines", p.stats.Lines).
			Int("roster_lines", p.stats.RosterLines).
			Int("service_records", p.stats.ServiceRecords).
			Int("skipped", p.stats.Skipped).
			Msg("file parsed")
	}

	in.logger.Info().
		Int("files", res.Stats.Files).
		Int("records", len(res.Records)).
		Int("patients", res.Roster.Len()).
		Int("skipped", res.Stats.Skipped).
		Msg("batch ingested")
	return res, nil
}

func parseFile(f File, cat *catalog.Catalog) (*partial, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("no content")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	text, err := textdecode.Decode(data)
	if err != nil {
		return nil, err
	}
	return parseText(f.Name, text, cat), nil
}

// parseText classifies and extracts every line of one file.
func parseText(name, text string, cat *catalog.Catalog) *partial {
	p := &partial{roster: identity.NewRoster(), stats: Stats{Files: 1}}
	cl := NewClassifier(SectionFromFilename(name))

	for _, raw := range SplitLines(text) {
		l := cl.Classify(raw)
		if l.Skip == SkipEmpty {
			continue
		}
		p.stats.Lines++
		switch {
		case l.Skip == SkipMarker:
			p.stats.Markers++
		case l.Skipped():
			p.stats.Skipped++
		case l.Roster:
			if upd, ok := ExtractRoster(l.Fields); ok && p.roster.Merge(upd) {
				p.stats.RosterLines++
			} else {
				p.stats.Skipped++
			}
		default:
			if rec, ok := ExtractService(l.Raw, cat); ok {
				p.records = append(p.records, rec)
				p.stats.ServiceRecords++
			} else {
				p.stats.Skipped++
			}
		}
	}
	return p
}

// SplitLines splits text on LF, dropping a trailing CR from each line.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
