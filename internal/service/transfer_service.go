package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/model"
	q "github.com/iliyamo/address-book/internal/queue"
	"github.com/iliyamo/address-book/internal/repository"
)

// DefaultImportMaxBytes is the upload ceiling for CSV imports.
const DefaultImportMaxBytes int64 = 5 << 20

// ExportHeader is the fixed column order of exported files.
var ExportHeader = []string{
	"ID", "Name", "Address Line 1", "Address Line 2", "Zipcode", "City",
	"Floor", "Door", "Telephone", "Email", "Created By", "Created At", "Updated At",
}

// importColumns maps normalized header names to entry fields.
var importColumns = map[string]string{
	"name":         "name",
	"fullname":     "name",
	"addressline1": "addressLine1",
	"address1":     "addressLine1",
	"address":      "street",
	"street":       "street",
	"addressline2": "addressLine2",
	"address2":     "addressLine2",
	"zipcode":      "zipcode",
	"zip":          "zipcode",
	"postalcode":   "zipcode",
	"postcode":     "zipcode",
	"city":         "city",
	"floor":        "floor",
	"door":         "door",
	"telephone":    "telephone",
	"phone":        "telephone",
	"email":        "email",
	"emailaddress": "email",
}

var headerStripper = strings.NewReplacer("_", "", "-", "")

// NormalizeHeader lowercases h and strips whitespace, underscores and
// dashes, so "Address Line 1", "address_line1" and "addressLine1" agree.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.Join(strings.Fields(strings.ToLower(h)), "")
	return headerStripper.Replace(h)
}

var csvContentTypes = map[string]bool{
	"text/csv":                    true,
	"application/csv":             true,
	"text/comma-separated-values": true,
	"application/vnd.ms-excel":    true,
	"text/plain":                  true,
	"application/octet-stream":    true,
}

// ValidateUpload rejects files that are not CSV or exceed max bytes. It
// runs before any parsing.
func ValidateUpload(filename, contentType string, size, max int64) error {
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return apperr.Validation("Invalid file type. Only CSV files are allowed.")
	}
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil || !csvContentTypes[strings.ToLower(mt)] {
			return apperr.Validation("Invalid file type. Only CSV files are allowed.")
		}
	}
	if max <= 0 {
		max = DefaultImportMaxBytes
	}
	if size > max {
		return apperr.Validation(fmt.Sprintf("File too large. Maximum size is %d MB.", max>>20))
	}
	return nil
}

// TransferService moves entries in and out as CSV.
type TransferService struct {
	store EntryStore
	auditor
}

func NewTransferService(store EntryStore, events EventPublisher, log *logrus.Logger) *TransferService {
	return &TransferService{store: store, auditor: newAuditor(events, log)}
}

// ExportFile is a rendered CSV export.
type ExportFile struct {
	Filename string
	Data     []byte
	Count    int
}

// Export renders every entry matching search as CSV, newest first. An
// empty result is a NotFound error rather than an empty file.
func (s *TransferService) Export(ctx context.Context, search string) (ExportFile, error) {
	entries, err := s.store.ListForExport(ctx, search)
	if err != nil {
		return ExportFile{}, apperr.Unexpected("Server error exporting entries.", err)
	}
	if len(entries) == 0 {
		return ExportFile{}, apperr.NotFound("No entries found to export.")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ExportHeader); err != nil {
		return ExportFile{}, apperr.Unexpected("Server error exporting entries.", err)
	}
	for _, e := range entries {
		rec := []string{
			strconv.FormatUint(e.ID, 10), e.Name, e.AddressLine1, e.AddressLine2,
			e.Zipcode, e.City, e.Floor, e.Door, e.Telephone, e.Email,
			e.CreatedBy.Username,
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return ExportFile{}, apperr.Unexpected("Server error exporting entries.", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return ExportFile{}, apperr.Unexpected("Server error exporting entries.", err)
	}
	return ExportFile{
		Filename: "entries_export_" + s.now().UTC().Format("2006-01-02_150405") + ".csv",
		Data:     buf.Bytes(),
		Count:    len(entries),
	}, nil
}

// ImportRowError is one failed row. Row is the line number in the file,
// counting the header as row 1.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportSummary struct {
	SuccessCount int              `json:"successCount"`
	ErrorCount   int              `json:"errorCount"`
	Errors       []ImportRowError `json:"errors"`
}

// ImportResult is the outcome of one import.
type ImportResult struct {
	BatchID string
	Summary ImportSummary
}

// Status is 201 when every row was stored, 207 on partial success and 500
// when nothing was stored.
func (r ImportResult) Status() int {
	switch {
	case r.Summary.ErrorCount == 0:
		return http.StatusCreated
	case r.Summary.SuccessCount > 0:
		return http.StatusMultiStatus
	}
	return http.StatusInternalServerError
}

func (r ImportResult) Message() string {
	s := r.Summary
	switch r.Status() {
	case http.StatusCreated:
		return fmt.Sprintf("Import completed: %d entries imported.", s.SuccessCount)
	case http.StatusMultiStatus:
		return fmt.Sprintf("Import completed with errors: %d imported, %d failed.", s.SuccessCount, s.ErrorCount)
	}
	return "Import failed: no entries were imported."
}

type pendingRow struct {
	row   int
	entry model.Entry
}

// Import parses r as CSV and stores every valid row with caller as
// creator. Row failures are collected in the summary; only an unreadable
// file, an empty file or a store that cannot run the batch yield an error.
func (s *TransferService) Import(ctx context.Context, caller model.User, r io.Reader) (ImportResult, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return ImportResult{}, apperr.Validation("CSV file is empty.")
	}
	if err != nil {
		return ImportResult{}, apperr.Validation("Could not parse CSV file.")
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = importColumns[NormalizeHeader(h)]
	}

	var summary ImportSummary
	var pending []pendingRow
	rows := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return ImportResult{}, apperr.Validation("Could not parse CSV file.")
			}
			rows++
			summary.Errors = append(summary.Errors, ImportRowError{Row: pe.StartLine, Message: "Malformed CSV row"})
			continue
		}
		line, _ := cr.FieldPos(0)
		if blankRecord(rec) {
			continue
		}
		rows++
		in := recordInput(columns, rec)
		e, fields := buildEntry(in)
		if len(fields) > 0 {
			summary.Errors = append(summary.Errors, ImportRowError{Row: line, Message: joinFieldErrors(fields)})
			continue
		}
		e.CreatedBy = model.Creator{ID: caller.ID, Username: caller.Username}
		pending = append(pending, pendingRow{row: line, entry: e})
	}
	if rows == 0 {
		return ImportResult{}, apperr.Validation("CSV file contains no data rows.")
	}

	if len(pending) > 0 {
		batch := make([]model.Entry, len(pending))
		for i, p := range pending {
			batch[i] = p.entry
		}
		results, err := s.store.InsertBatch(ctx, batch)
		if err != nil {
			return ImportResult{}, apperr.Unexpected("Server error importing entries.", err)
		}
		for i, rerr := range results {
			if rerr == nil {
				summary.SuccessCount++
				continue
			}
			summary.Errors = append(summary.Errors, ImportRowError{Row: pending[i].row, Message: importStoreMessage(rerr)})
		}
	}
	sortRowErrors(summary.Errors)
	summary.ErrorCount = len(summary.Errors)
	if summary.Errors == nil {
		summary.Errors = []ImportRowError{}
	}

	res := ImportResult{BatchID: uuid.NewString(), Summary: summary}
	s.log.WithFields(logrus.Fields{
		"batch_id":  res.BatchID,
		"user_id":   caller.ID,
		"succeeded": summary.SuccessCount,
		"failed":    summary.ErrorCount,
	}).Info("csv import finished")
	if summary.SuccessCount > 0 {
		s.emit(ctx, q.EntryEvent{
			Action: q.ActionEntriesImport, UserID: caller.ID, Username: caller.Username,
			BatchID: res.BatchID, Succeeded: summary.SuccessCount, Failed: summary.ErrorCount,
		})
	}
	return res, nil
}

func recordInput(columns, rec []string) EntryInput {
	var in EntryInput
	for i, v := range rec {
		if i >= len(columns) {
			break
		}
		switch columns[i] {
		case "name":
			in.Name = &v
		case "addressLine1":
			in.AddressLine1 = &v
		case "street":
			in.Street = &v
		case "addressLine2":
			in.AddressLine2 = &v
		case "zipcode":
			in.Zipcode = &v
		case "city":
			in.City = &v
		case "floor":
			in.Floor = &v
		case "door":
			in.Door = &v
		case "telephone":
			in.Telephone = &v
		case "email":
			in.Email = &v
		}
	}
	return in
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func joinFieldErrors(fields []apperr.FieldError) string {
	msgs := make([]string, len(fields))
	for i, f := range fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

func importStoreMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrDuplicateEntry):
		return msgDuplicateEntry
	case errors.Is(err, repository.ErrConflict):
		return msgEntryConflict
	}
	return "Failed to save entry."
}

// sortRowErrors orders errors by row. Validation failures and store
// failures are collected in two passes.
func sortRowErrors(errs []ImportRowError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Row < errs[j].Row })
}
