package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/model"
	q "github.com/iliyamo/address-book/internal/queue"
	"github.com/iliyamo/address-book/internal/repository"
)

// EntryStore is the persistence the entry services need. It is satisfied
// by *repository.EntryRepo and by the in-memory store.
type EntryStore interface {
	FindDuplicate(ctx context.Context, name, line1, line2, zipcode string, excludeID uint64) (bool, error)
	Create(ctx context.Context, e *model.Entry) error
	InsertBatch(ctx context.Context, entries []model.Entry) ([]error, error)
	GetByID(ctx context.Context, id uint64) (*model.Entry, error)
	Search(ctx context.Context, query repository.EntryQuery) ([]model.Entry, int64, error)
	ListForExport(ctx context.Context, search string) ([]model.Entry, error)
	Update(ctx context.Context, id uint64, p repository.EntryPatch) error
	Delete(ctx context.Context, id uint64) error
}

// Paging defaults.
const (
	DefaultPage      = 1
	DefaultPageSize  = 10
	MaxPageSize      = 100
	// MaxPage keeps the row offset within 32 bits.
	MaxPage          = math.MaxInt32 / MaxPageSize
	DefaultSortField = "createdAt"
	DefaultSortOrder = "desc"
)

const (
	msgDuplicateEntry = "Duplicate entry detected. An entry with similar name, street, and zipcode already exists."
	msgEntryConflict  = "Entry conflicts with an existing record."
	msgEntryNotFound  = "Entry not found"
)

// auditor publishes audit events on a detached context so a client that
// hangs up does not cancel the publish.
type auditor struct {
	events EventPublisher
	log    *logrus.Logger
	now    func() time.Time
}

func (a auditor) emit(ctx context.Context, ev q.EntryEvent) {
	ev.OccurredAt = a.now().UTC().Format(time.RFC3339)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := a.events.Publish(pctx, ev); err != nil {
		a.log.WithError(err).WithField("action", ev.Action).Warn("audit event not published")
	}
}

func newAuditor(events EventPublisher, log *logrus.Logger) auditor {
	if events == nil {
		events = NopPublisher{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return auditor{events: events, log: log, now: time.Now}
}

// EntryService implements entry CRUD and search on top of an EntryStore.
type EntryService struct {
	store EntryStore
	auditor
}

func NewEntryService(store EntryStore, events EventPublisher, log *logrus.Logger) *EntryService {
	return &EntryService{store: store, auditor: newAuditor(events, log)}
}

// ParseEntryID parses a path id. Anything but a positive integer is a
// validation error.
func ParseEntryID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("Invalid entry ID format")
	}
	return id, nil
}

// entryStoreError turns repository sentinels into client errors. action is
// used in the generic 500 message.
func entryStoreError(err error, action string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateEntry):
		return apperr.Conflict(msgDuplicateEntry, err)
	case errors.Is(err, repository.ErrConflict):
		return apperr.Conflict(msgEntryConflict, err)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(msgEntryNotFound)
	}
	return apperr.Unexpected("Server error "+action+" entry.", err)
}

// Create validates in, rejects duplicates and stores the entry with caller
// as its creator.
func (s *EntryService) Create(ctx context.Context, caller model.User, in EntryInput) (*model.Entry, error) {
	e, fields := buildEntry(in)
	if len(fields) > 0 {
		return nil, apperr.Validation("Validation failed", fields...)
	}
	dup, err := s.store.FindDuplicate(ctx, e.Name, e.AddressLine1, e.AddressLine2, e.Zipcode, 0)
	if err != nil {
		return nil, entryStoreError(err, "creating")
	}
	if dup {
		return nil, apperr.Conflict(msgDuplicateEntry, nil)
	}
	e.CreatedBy = model.Creator{ID: caller.ID, Username: caller.Username}
	if err := s.store.Create(ctx, &e); err != nil {
		return nil, entryStoreError(err, "creating")
	}
	s.emit(ctx, q.EntryEvent{
		Action: q.ActionEntryCreated, EntryID: e.ID, EntryName: e.Name,
		UserID: caller.ID, Username: caller.Username,
	})
	return &e, nil
}

// Get returns one entry by id.
func (s *EntryService) Get(ctx context.Context, id uint64) (*model.Entry, error) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, entryStoreError(err, "fetching")
	}
	return e, nil
}

// SearchParams is the raw listing query. Zero values take the defaults.
type SearchParams struct {
	Search    string
	Page      int
	Limit     int
	SortField string
	SortOrder string
}

// Pagination describes the page returned by Search.
type Pagination struct {
	CurrentPage  int    `json:"currentPage"`
	TotalPages   int    `json:"totalPages"`
	TotalRecords int64  `json:"totalRecords"`
	Limit        int    `json:"limit"`
	SortField    string `json:"sortField"`
	SortOrder    string `json:"sortOrder"`
}

// SearchResult is one page of entries.
type SearchResult struct {
	Entries    []model.Entry `json:"entries"`
	Pagination Pagination    `json:"pagination"`
}

// Normalize applies defaults and bounds. Unknown sort fields fall back to
// createdAt; any order other than asc is desc.
func (p SearchParams) Normalize() SearchParams {
	p.Search = strings.TrimSpace(p.Search)
	switch {
	case p.Page < 1:
		p.Page = DefaultPage
	case p.Page > MaxPage:
		p.Page = MaxPage
	}
	switch {
	case p.Limit < 1:
		p.Limit = DefaultPageSize
	case p.Limit > MaxPageSize:
		p.Limit = MaxPageSize
	}
	if _, ok := repository.SortColumns[p.SortField]; !ok {
		p.SortField = DefaultSortField
	}
	if strings.EqualFold(p.SortOrder, "asc") {
		p.SortOrder = "asc"
	} else {
		p.SortOrder = DefaultSortOrder
	}
	return p
}

// Search returns one page of entries matching the free-text filter.
func (s *EntryService) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	p = p.Normalize()
	entries, total, err := s.store.Search(ctx, repository.EntryQuery{
		Search: p.Search, Page: p.Page, Limit: p.Limit,
		SortField: p.SortField, SortOrder: p.SortOrder,
	})
	if err != nil {
		return SearchResult{}, apperr.Unexpected("Server error fetching entries.", err)
	}
	if entries == nil {
		entries = []model.Entry{}
	}
	return SearchResult{
		Entries: entries,
		Pagination: Pagination{
			CurrentPage:  p.Page,
			TotalPages:   int((total + int64(p.Limit) - 1) / int64(p.Limit)),
			TotalRecords: total,
			Limit:        p.Limit,
			SortField:    p.SortField,
			SortOrder:    p.SortOrder,
		},
	}, nil
}

// Update applies a partial update. Fields present in the body must be
// valid; absent fields keep their value. The address lines are recombined
// with the stored ones before the duplicate check.
func (s *EntryService) Update(ctx context.Context, caller model.User, id uint64, in EntryInput) (*model.Entry, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, entryStoreError(err, "updating")
	}

	var patch repository.EntryPatch
	var fields []apperr.FieldError
	set := func(field string, required bool, v *string, dst **string) {
		if v == nil {
			return
		}
		val := strings.TrimSpace(*v)
		if required && val == "" {
			fields = append(fields, apperr.FieldError{Field: field, Message: fieldLabels[field] + " cannot be empty"})
			return
		}
		if fe := tooLong(field, val); fe != nil {
			fields = append(fields, *fe)
			return
		}
		*dst = &val
	}
	set("name", true, in.Name, &patch.Name)
	set("zipcode", true, in.Zipcode, &patch.Zipcode)
	set("city", true, in.City, &patch.City)
	set("telephone", true, in.Telephone, &patch.Telephone)
	set("floor", false, in.Floor, &patch.Floor)
	set("door", false, in.Door, &patch.Door)

	line1, line2 := in.AddressLine1, in.AddressLine2
	if line1 == nil && line2 == nil && in.Street != nil {
		l1, l2 := model.SplitStreet(*in.Street)
		line1, line2 = &l1, &l2
	}
	if line1 != nil || line2 != nil {
		l1, l2 := existing.AddressLine1, existing.AddressLine2
		if line1 != nil {
			l1 = *line1
		}
		if line2 != nil {
			l2 = *line2
		}
		set("addressLine1", true, &l1, &patch.AddressLine1)
		set("addressLine2", false, &l2, &patch.AddressLine2)
	}

	if in.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*in.Email))
		if !validEmail(v) {
			fields = append(fields, apperr.FieldError{Field: "email", Message: "Valid email is required"})
		} else if fe := tooLong("email", v); fe != nil {
			fields = append(fields, *fe)
		} else {
			patch.Email = &v
		}
	}

	if len(fields) > 0 {
		return nil, apperr.Validation("Validation failed", fields...)
	}
	if patch.Empty() {
		return nil, apperr.Validation("No update data provided or recognized.")
	}

	if patch.Name != nil || patch.AddressLine1 != nil || patch.Zipcode != nil {
		name, l1, l2, zip := existing.Name, existing.AddressLine1, existing.AddressLine2, existing.Zipcode
		pick(&name, patch.Name)
		pick(&l1, patch.AddressLine1)
		pick(&l2, patch.AddressLine2)
		pick(&zip, patch.Zipcode)
		dup, err := s.store.FindDuplicate(ctx, name, l1, l2, zip, id)
		if err != nil {
			return nil, entryStoreError(err, "updating")
		}
		if dup {
			return nil, apperr.Conflict(msgDuplicateEntry, nil)
		}
	}

	if err := s.store.Update(ctx, id, patch); err != nil {
		return nil, entryStoreError(err, "updating")
	}
	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, entryStoreError(err, "updating")
	}
	s.emit(ctx, q.EntryEvent{
		Action: q.ActionEntryUpdated, EntryID: id, EntryName: updated.Name,
		UserID: caller.ID, Username: caller.Username,
	})
	return updated, nil
}

func pick(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Delete removes an entry by id.
func (s *EntryService) Delete(ctx context.Context, caller model.User, id uint64) error {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return entryStoreError(err, "deleting")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return entryStoreError(err, "deleting")
	}
	s.emit(ctx, q.EntryEvent{
		Action: q.ActionEntryDeleted, EntryID: id, EntryName: existing.Name,
		UserID: caller.ID, Username: caller.Username,
	})
	return nil
}
