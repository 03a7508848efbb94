package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/repository"
)

func matches(e model.Entry, needle string) bool {
	if needle == "" {
		return true
	}
	for _, v := range []string{e.Name, e.AddressLine1, e.AddressLine2, e.City, e.Zipcode, e.Email, e.Telephone} {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// less orders entries the way the SQL ORDER BY does: by the sort column,
// then by id in the same direction.
func less(field string, asc bool) func(a, b model.Entry) bool {
	cmp := func(a, b model.Entry) int {
		switch field {
		case "updatedAt":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case "name":
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "city":
			return strings.Compare(strings.ToLower(a.City), strings.ToLower(b.City))
		case "zipcode":
			return strings.Compare(strings.ToLower(a.Zipcode), strings.ToLower(b.Zipcode))
		case "email":
			return strings.Compare(a.Email, b.Email)
		case "telephone":
			return strings.Compare(a.Telephone, b.Telephone)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return func(a, b model.Entry) bool {
		c := cmp(a, b)
		if c == 0 {
			if asc {
				return a.ID < b.ID
			}
			return a.ID > b.ID
		}
		if asc {
			return c < 0
		}
		return c > 0
	}
}

func (r *Entries) filtered(search, field string, asc bool) []model.Entry {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := []model.Entry{}
	for _, e := range r.s.entries {
		if matches(e, needle) {
			out = append(out, r.resolve(e))
		}
	}
	lt := less(field, asc)
	sort.Slice(out, func(i, j int) bool { return lt(out[i], out[j]) })
	return out
}

func (r *Entries) Search(_ context.Context, q repository.EntryQuery) ([]model.Entry, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := r.filtered(q.Search, q.SortField, strings.EqualFold(q.SortOrder, "asc"))
	total := int64(len(all))
	start := (q.Page - 1) * q.Limit
	if start < 0 || start >= len(all) {
		return []model.Entry{}, total, nil
	}
	end := start + q.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *Entries) ListForExport(_ context.Context, search string) ([]model.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.filtered(search, "createdAt", false), nil
}
