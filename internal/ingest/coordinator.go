// Package ingest implements the bulk CSV ingestion pipeline: upload the raw
// file, parse it, validate every row, and persist each valid row with one
// create call. The stages fail independently on purpose: a file from a real
// data-entry workflow routinely mixes good and bad rows, and an
// all-or-nothing transaction would throw away the good ones.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/quakewatch/eq-records/internal/blob"
	"github.com/quakewatch/eq-records/internal/domain"
	"github.com/quakewatch/eq-records/internal/observability"
)

// ErrNotCSV rejects uploads before any storage or parse work happens.
var ErrNotCSV = errors.New("file must have a .csv extension")

// RecordCreator persists one validated record. Implemented by the record
// store client.
type RecordCreator interface {
	Create(ctx context.Context, rec domain.Record) (domain.Record, error)
}

// RowError carries the verbatim rejection reasons for one spreadsheet row.
type RowError struct {
	Row     int      `json:"row"`
	Reasons []string `json:"reasons"`
}

// Outcome summarizes one ingestion run. It is built fresh per upload, shown
// to the operator, and never persisted. Per-row reasons are preserved
// verbatim, since a count alone would hide which rows need fixing.
type Outcome struct {
	TotalRows      int           `json:"total_rows"`
	ValidRows      int           `json:"valid_rows"`
	ErrorRows      []RowError    `json:"error_rows"`
	Storage        blob.Location `json:"storage"`
	CreatedCount   int           `json:"created_count"`
	CreateFailures int           `json:"create_failures"`
}

// Ingestor coordinates upload, parse, validate, and persist for a bulk file.
type Ingestor struct {
	blobs   blob.Store
	store   RecordCreator
	prefix  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Ingestor. prefix namespaces storage keys for uploaded files.
func New(blobs blob.Store, store RecordCreator, prefix string, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		blobs:   blobs,
		store:   store,
		prefix:  prefix,
		logger:  logger,
		metrics: metrics,
	}
}

// Ingest runs the pipeline for one uploaded file.
//
// The stages and their failure semantics:
//
//  1. Extension gate: ErrNotCSV before anything touches storage.
//  2. Raw-file upload: fatal on failure; nothing later undoes it on
//     purpose, so a file that fails parsing stays available for manual
//     inspection.
//  3. Parse: fatal (*ParseError); the upload from step 2 is kept.
//  4. Validate every row independently; a bad row never stops its
//     neighbors.
//  5. One create per valid row, in file order; each failure is counted and
//     logged, not fatal to the batch.
//
// Ingest returns a non-nil Outcome exactly when the run reached validation,
// even if every single row failed.
func (i *Ingestor) Ingest(ctx context.Context, fileName string, data []byte) (*Outcome, error) {
	start := time.Now()
	i.metrics.UploadsTotal.Inc()

	if !strings.EqualFold(filepath.Ext(fileName), ".csv") {
		i.metrics.UploadFailures.WithLabelValues("extension").Inc()
		return nil, fmt.Errorf("%w: %q", ErrNotCSV, fileName)
	}

	key := i.storageKey(fileName)
	location, err := i.blobs.Upload(ctx, key, data, "text/csv")
	if err != nil {
		i.metrics.UploadFailures.WithLabelValues("storage").Inc()
		return nil, fmt.Errorf("upload raw file: %w", err)
	}

	rows, err := ParseCSV(data)
	if err != nil {
		i.metrics.UploadFailures.WithLabelValues("parse").Inc()
		// Accepted inconsistency: the raw upload stays in storage so an
		// operator can inspect the broken file.
		i.logger.Warn("csv parse failed after upload",
			"file", fileName,
			"storage_path", location.Path,
			"error", err,
		)
		return nil, err
	}

	outcome := &Outcome{
		TotalRows: len(rows),
		Storage:   location,
	}

	valid := make([]domain.Record, 0, len(rows))
	for idx, row := range rows {
		rowNum := idx + 2
		rec, reasons := domain.ValidateRow(row, rowNum)
		if len(reasons) > 0 {
			outcome.ErrorRows = append(outcome.ErrorRows, RowError{Row: rowNum, Reasons: reasons})
			continue
		}
		rec.Source = domain.SourceCSVUpload
		valid = append(valid, rec)
	}
	outcome.ValidRows = len(valid)

	i.metrics.RowsParsed.Add(float64(outcome.TotalRows))
	i.metrics.RowsRejected.Add(float64(len(outcome.ErrorRows)))
	i.metrics.IngestBatchSize.Observe(float64(outcome.TotalRows))

	// Sequential creates keep error attribution exact; only the final counts
	// are promised to the caller.
	for _, rec := range valid {
		if _, err := i.store.Create(ctx, rec); err != nil {
			outcome.CreateFailures++
			i.metrics.CreateFailures.Inc()
			i.logger.Warn("record create failed, continuing batch",
				"file", fileName,
				"location", rec.Location,
				"error", err,
			)
			continue
		}
		outcome.CreatedCount++
	}
	i.metrics.RecordsCreated.Add(float64(outcome.CreatedCount))
	i.metrics.IngestDuration.Observe(time.Since(start).Seconds())

	i.logger.Info("ingestion complete",
		"file", fileName,
		"storage_path", location.Path,
		"total_rows", outcome.TotalRows,
		"valid_rows", outcome.ValidRows,
		"error_rows", len(outcome.ErrorRows),
		"created", outcome.CreatedCount,
		"create_failures", outcome.CreateFailures,
	)

	return outcome, nil
}

// storageKey builds a collision-resistant key: a millisecond timestamp
// prefix plus the original base name, namespaced under the bucket prefix.
func (i *Ingestor) storageKey(fileName string) string {
	base := filepath.Base(fileName)
	return fmt.Sprintf("%s/%d_%s", i.prefix, clock.Now().UnixMilli(), base)
}
