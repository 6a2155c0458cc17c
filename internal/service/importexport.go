package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/ayato/snippetbase/internal/apperror"
	"github.com/ayato/snippetbase/internal/model"
)

// ExportVersion tags the JSON export envelope so a future format change can
// be detected on import.
const ExportVersion = "1.0"

// csvHeader is the fixed column order of CSV exports. Imports match columns
// by header name, so reordered files still load.
var csvHeader = []string{"title", "content", "category", "tags", "description", "language", "usage_count"}

// ExportEnvelope is the JSON export format: a small header wrapping the
// full snippet list.
type ExportEnvelope struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	TotalCount int             `json:"total_count"`
	Snippets   []model.Snippet `json:"snippets"`
}

// ImportSummary reports the outcome of one import run. A single bad record
// never aborts the run — it lands in Failed/Errors and the rest proceed.
//
// BatchID identifies the run in the logs, so a "what happened during last
// night's import" question has something to grep for.
type ImportSummary struct {
	BatchID  string   `json:"batchId"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// ExportJSON writes every snippet to w as a versioned JSON envelope and
// returns the number of snippets written.
func (s *SnippetService) ExportJSON(ctx context.Context, w io.Writer) (int, error) {
	snippets, err := s.repo.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("exporting snippets: %w", err)
	}

	envelope := ExportEnvelope{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		TotalCount: len(snippets),
		Snippets:   snippets,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope); err != nil {
		return 0, fmt.Errorf("encoding export: %w", err)
	}

	s.logger.Info("exported snippets", slog.String("format", "json"), slog.Int("count", len(snippets)))
	return len(snippets), nil
}

// ExportCSV writes every snippet to w as CSV with a header row and returns
// the number of snippets written. Timestamps and the favourite flag are not
// exported — CSV is the "spreadsheet-friendly" format, trimmed to the fields
// a human edits.
func (s *SnippetService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	snippets, err := s.repo.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("exporting snippets: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("writing csv header: %w", err)
	}
	for _, snippet := range snippets {
		record := []string{
			snippet.Title,
			snippet.Content,
			snippet.Category,
			snippet.Tags,
			snippet.Description,
			snippet.Language,
			strconv.Itoa(snippet.UsageCount),
		}
		if err := cw.Write(record); err != nil {
			return 0, fmt.Errorf("writing csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flushing csv: %w", err)
	}

	s.logger.Info("exported snippets", slog.String("format", "csv"), slog.Int("count", len(snippets)))
	return len(snippets), nil
}

// ImportJSON loads snippets from a JSON export envelope. Records that fail
// validation are reported individually; records whose title+category pair
// already exists are skipped as duplicates.
func (s *SnippetService) ImportJSON(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	var envelope ExportEnvelope
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, apperror.ValidationFailed("file", "not a valid JSON export: "+err.Error())
	}
	if len(envelope.Snippets) == 0 {
		return nil, apperror.ValidationFailed("file", "export contains no snippets")
	}

	inputs := make([]SnippetInput, 0, len(envelope.Snippets))
	for _, snippet := range envelope.Snippets {
		inputs = append(inputs, SnippetInput{
			Title:       snippet.Title,
			Content:     snippet.Content,
			Category:    snippet.Category,
			Tags:        snippet.Tags,
			Description: snippet.Description,
			Language:    snippet.Language,
		})
	}
	return s.importRecords(ctx, "json", inputs)
}

// ImportCSV loads snippets from a CSV file with a header row. Columns are
// matched by header name so column order doesn't matter; title and content
// are required, everything else optional. The usage_count column, if
// present, is ignored — counters always start at zero for imported rows.
func (s *SnippetService) ImportCSV(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are handled per-record below

	header, err := cr.Read()
	if err != nil {
		return nil, apperror.ValidationFailed("file", "cannot read csv header: "+err.Error())
	}
	column := make(map[string]int, len(header))
	for i, name := range header {
		column[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := column["title"]; !ok {
		return nil, apperror.ValidationFailed("file", "csv header is missing the title column")
	}
	if _, ok := column["content"]; !ok {
		return nil, apperror.ValidationFailed("file", "csv header is missing the content column")
	}

	field := func(record []string, name string) string {
		idx, ok := column[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var inputs []SnippetInput
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperror.ValidationFailed("file", "malformed csv: "+err.Error())
		}
		inputs = append(inputs, SnippetInput{
			Title:       field(record, "title"),
			Content:     field(record, "content"),
			Category:    field(record, "category"),
			Tags:        field(record, "tags"),
			Description: field(record, "description"),
			Language:    field(record, "language"),
		})
	}
	if len(inputs) == 0 {
		return nil, apperror.ValidationFailed("file", "csv contains no snippets")
	}
	return s.importRecords(ctx, "csv", inputs)
}

// importRecords runs the shared import loop: validate each record, skip
// duplicates, create the rest. A backend outage aborts the run — continuing
// would misreport every remaining record as failed when the store is simply
// down.
func (s *SnippetService) importRecords(ctx context.Context, format string, inputs []SnippetInput) (*ImportSummary, error) {
	summary := &ImportSummary{BatchID: xid.New().String()}

	// One upfront read of what exists; created records join the set so
	// duplicates inside the import file are caught too.
	existing, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("import %s: loading existing snippets: %w", summary.BatchID, err)
	}
	have := make(map[string]bool, len(existing))
	for _, snippet := range existing {
		have[dedupeKey(snippet.Title, snippet.Category)] = true
	}

	s.logger.Info("import started",
		slog.String("batch", summary.BatchID),
		slog.String("format", format),
		slog.Int("records", len(inputs)),
	)

	for _, in := range inputs {
		normalized, err := normalizeInput(in)
		if err != nil {
			summary.Failed++
			recordErr := apperror.ImportRecord(in.Title, validationMessage(err))
			summary.Errors = append(summary.Errors, recordErr.Error())
			continue
		}

		key := dedupeKey(normalized.Title, normalized.Category)
		if have[key] {
			summary.Skipped++
			continue
		}

		snippet := &model.Snippet{
			Title:       normalized.Title,
			Content:     normalized.Content,
			Category:    normalized.Category,
			Tags:        normalized.Tags,
			Description: normalized.Description,
			Language:    normalized.Language,
		}
		if err := s.repo.Create(ctx, snippet); err != nil {
			if errors.Is(err, apperror.ErrUnavailable) {
				return nil, fmt.Errorf("import %s aborted: %w", summary.BatchID, err)
			}
			summary.Failed++
			recordErr := apperror.ImportRecord(normalized.Title, err.Error())
			summary.Errors = append(summary.Errors, recordErr.Error())
			continue
		}
		have[key] = true
		summary.Imported++
	}

	s.logger.Info("import finished",
		slog.String("batch", summary.BatchID),
		slog.Int("imported", summary.Imported),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
	)
	return summary, nil
}

// dedupeKey identifies a snippet for duplicate detection: title plus
// category, case-insensitively.
func dedupeKey(title, category string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "\x00" + strings.ToLower(strings.TrimSpace(category))
}

// validationMessage extracts the human message from a validation error for
// the per-record import report.
func validationMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
