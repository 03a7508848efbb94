package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/address-book/internal/model"
)

// EntryQuery defines the free-text filter, sorting and pagination for
// listing entries. Page and Limit are expected to be normalized already.
type EntryQuery struct {
	Search    string
	Page      int
	Limit     int
	SortField string // key of SortColumns
	SortOrder string // "asc" or "desc"
}

// SortColumns whitelists the sort fields clients may request.
var SortColumns = map[string]string{
	"createdAt": "e.created_at",
	"updatedAt": "e.updated_at",
	"name":      "e.name",
	"city":      "e.city",
	"zipcode":   "e.zipcode",
	"email":     "e.email",
	"telephone": "e.telephone",
}

var searchColumns = []string{
	"e.name", "e.address_line1", "e.address_line2", "e.city",
	"e.zipcode", "e.email", "e.telephone",
}

// likeEscaper escapes LIKE wildcards so user input matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchCondition builds the WHERE clause shared by listing and export: a
// case-insensitive substring match on any searchable column.
func searchCondition(search string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "1=1", nil
	}
	pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
	parts := make([]string, len(searchColumns))
	args := make([]any, len(searchColumns))
	for i, col := range searchColumns {
		parts[i] = "LOWER(" + col + ") LIKE ?"
		args[i] = pattern
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func orderClause(field, order string) string {
	col, ok := SortColumns[field]
	if !ok {
		col = SortColumns["createdAt"]
	}
	dir := "DESC"
	if strings.EqualFold(order, "asc") {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir + ", e.id " + dir
}

// Search returns one page of matching entries and the total match count.
func (r *EntryRepo) Search(ctx context.Context, q EntryQuery) ([]model.Entry, int64, error) {
	cond, args := searchCondition(q.Search)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries e WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := q.Limit
	offset := (q.Page - 1) * q.Limit
	dataSQL := entrySelect + " WHERE " + cond + orderClause(q.SortField, q.SortOrder) + " LIMIT ? OFFSET ?"
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListForExport returns every entry matching search, newest first.
func (r *EntryRepo) ListForExport(ctx context.Context, search string) ([]model.Entry, error) {
	cond, args := searchCondition(search)
	rows, err := r.db.QueryContext(ctx, entrySelect+" WHERE "+cond+orderClause("createdAt", "desc"), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
