package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"noorcreations/backend/internal/domain"
	"noorcreations/backend/internal/importer"
	"noorcreations/backend/internal/store"
)

// ImportBatchSize controls how many rows are committed per batch; rows
// inside a batch run concurrently.
const ImportBatchSize = 10

// ParseImport reads an uploaded spreadsheet into a preview. Nothing is
// persisted here; the client reviews the rows and posts them back to
// CommitImport.
func (s *Service) ParseImport(ctx context.Context, fileName string, r io.Reader) (*domain.ImportPreview, error) {
	grid, err := importer.ReadWorkbook(fileName, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidTransaction, err)
	}
	result, err := importer.ParseRows(grid)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidTransaction, err)
	}

	preview := &domain.ImportPreview{
		SessionID:   uuid.NewString(),
		FileName:    fileName,
		Rows:        result.Rows,
		TotalRows:   len(result.Rows),
		SkippedRows: result.Skipped,
		Truncated:   result.Truncated,
	}
	for _, row := range result.Rows {
		if row.Valid {
			preview.ValidRows++
		} else {
			preview.InvalidRows++
		}
	}
	if result.Truncated {
		s.log.WithFields(logrus.Fields{
			"file": fileName,
			"cap":  importer.MaxRows,
		}).Warn("import truncated to row cap")
	}
	return preview, nil
}

// CommitImport upserts the valid rows in batches. A failing row is recorded
// and skipped; the batch, and the import, keep going. The import history
// record and a listing-cache flush land at the end regardless of row
// failures.
func (s *Service) CommitImport(ctx context.Context, req domain.ImportCommitRequest) (*domain.ImportCommitResult, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	actor := actorName(ctx)
	result := &domain.ImportCommitResult{SessionID: req.SessionID, FileName: req.FileName}

	valid := make([]domain.ParsedRow, 0, len(req.Rows))
	for _, row := range req.Rows {
		if !row.Valid || strings.TrimSpace(row.SKU) == "" {
			continue
		}
		// Rows arrive from the client, not straight from the parser;
		// re-check the bounds before they reach the store.
		if err := importer.CheckRow(row); err != nil {
			result.Errors = append(result.Errors, domain.ImportRowError{
				Row:     row.RowNumber,
				SKU:     row.SKU,
				Message: err.Error(),
			})
			continue
		}
		valid = append(valid, row)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: no valid rows to import", store.ErrInvalidTransaction)
	}
	totalBatches := (len(valid) + ImportBatchSize - 1) / ImportBatchSize

	var mu sync.Mutex
	for start := 0; start < len(valid); start += ImportBatchSize {
		end := start + ImportBatchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]
		result.Batches++

		// Categories may have been created mid-import; refresh the
		// name->id map for every batch.
		categoryIDs, err := s.categoryIDsByName(ctx)
		if err != nil {
			return nil, err
		}

		var wg sync.WaitGroup
		for _, row := range batch {
			wg.Add(1)
			go func(row domain.ParsedRow) {
				defer wg.Done()

				var categoryID *string
				if row.Category != "" {
					if id, ok := categoryIDs[strings.ToUpper(row.Category)]; ok {
						categoryID = &id
					}
				}
				created, err := s.repo.UpsertImportedProduct(ctx, row, categoryID, req.SessionID, actor)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Errors = append(result.Errors, domain.ImportRowError{
						Row:     row.RowNumber,
						SKU:     row.SKU,
						Message: err.Error(),
					})
					return
				}
				if created {
					result.Created++
				} else {
					result.Updated++
				}
			}(row)
		}
		wg.Wait()

		s.log.WithFields(logrus.Fields{
			"session":  req.SessionID,
			"progress": fmt.Sprintf("%d%%", (result.Batches*100+totalBatches/2)/totalBatches),
			"batch":    result.Batches,
		}).Info("import batch committed")
	}

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Row < result.Errors[j].Row })

	if _, err := s.repo.CreateImportHistory(ctx, domain.ImportHistory{
		FileName:     req.FileName,
		TotalRows:    len(valid),
		CreatedCount: result.Created,
		UpdatedCount: result.Updated,
		Errors:       result.Errors,
		CreatedBy:    actor,
	}); err != nil {
		s.log.WithError(err).Warn("import history write failed")
	}
	s.invalidateListings(ctx)

	s.log.WithFields(logrus.Fields{
		"session": req.SessionID,
		"created": result.Created,
		"updated": result.Updated,
		"errors":  len(result.Errors),
		"actor":   actor,
	}).Info("import committed")
	return result, nil
}

func (s *Service) categoryIDsByName(ctx context.Context) (map[string]string, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(categories))
	for _, c := range categories {
		out[strings.ToUpper(c.Name)] = c.ID
	}
	return out, nil
}
