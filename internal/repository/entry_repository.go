package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/address-book/internal/model"
)

// EntryRepo encapsulates all database queries related to address-book
// entries. Creator usernames are resolved with a join on every read.
type EntryRepo struct {
	db *sql.DB
}

func NewEntryRepo(db *sql.DB) *EntryRepo {
	return &EntryRepo{db: db}
}

// EntryPatch lists the columns an update touches. Nil fields are left as
// they are.
type EntryPatch struct {
	Name         *string
	AddressLine1 *string
	AddressLine2 *string
	Zipcode      *string
	City         *string
	Floor        *string
	Door         *string
	Telephone    *string
	Email        *string
}

// Empty reports whether the patch changes nothing.
func (p EntryPatch) Empty() bool {
	return len(p.assignments()) == 0
}

type assignment struct {
	column string
	value  string
}

func (p EntryPatch) assignments() []assignment {
	var out []assignment
	add := func(col string, v *string) {
		if v != nil {
			out = append(out, assignment{col, *v})
		}
	}
	add("name", p.Name)
	add("address_line1", p.AddressLine1)
	add("address_line2", p.AddressLine2)
	add("zipcode", p.Zipcode)
	add("city", p.City)
	add("floor", p.Floor)
	add("door", p.Door)
	add("telephone", p.Telephone)
	add("email", p.Email)
	return out
}

const entrySelect = `SELECT
		e.id, e.name, e.address_line1, e.address_line2, e.zipcode, e.city,
		e.floor, e.door, e.telephone, e.email,
		e.created_by, COALESCE(u.username, ''),
		e.created_at, e.updated_at
	FROM entries e
	LEFT JOIN users u ON u.id = e.created_by`

func scanEntry(row interface{ Scan(...any) error }) (model.Entry, error) {
	var e model.Entry
	err := row.Scan(
		&e.ID, &e.Name, &e.AddressLine1, &e.AddressLine2, &e.Zipcode, &e.City,
		&e.Floor, &e.Door, &e.Telephone, &e.Email,
		&e.CreatedBy.ID, &e.CreatedBy.Username,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

// FindDuplicate reports whether another entry shares the identity tuple,
// comparing case-insensitively. excludeID skips the entry being updated.
func (r *EntryRepo) FindDuplicate(ctx context.Context, name, line1, line2, zipcode string, excludeID uint64) (bool, error) {
	const q = `SELECT id FROM entries
		WHERE LOWER(name) = LOWER(?)
		  AND LOWER(address_line1) = LOWER(?)
		  AND LOWER(address_line2) = LOWER(?)
		  AND LOWER(zipcode) = LOWER(?)
		  AND id <> ?
		LIMIT 1`
	var id uint64
	err := r.db.QueryRowContext(ctx, q, name, line1, line2, zipcode, excludeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

const entryInsert = `INSERT INTO entries
	(name, address_line1, address_line2, zipcode, city, floor, door, telephone, email, created_by)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func entryInsertArgs(e *model.Entry) []any {
	return []any{e.Name, e.AddressLine1, e.AddressLine2, e.Zipcode, e.City,
		e.Floor, e.Door, e.Telephone, e.Email, e.CreatedBy.ID}
}

// Create inserts e and reloads it so timestamps and the creator username
// are populated.
func (r *EntryRepo) Create(ctx context.Context, e *model.Entry) error {
	res, err := r.db.ExecContext(ctx, entryInsert, entryInsertArgs(e)...)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*e = *created
	return nil
}

// InsertBatch writes entries through one prepared statement. A failing row
// does not stop the rest; the returned slice holds one error (or nil) per
// input row. The second return value reports failures that prevented the
// batch from running at all.
func (r *EntryRepo) InsertBatch(ctx context.Context, entries []model.Entry) ([]error, error) {
	stmt, err := r.db.PrepareContext(ctx, entryInsert)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	results := make([]error, len(entries))
	for i := range entries {
		res, err := stmt.ExecContext(ctx, entryInsertArgs(&entries[i])...)
		if err != nil {
			results[i] = classify(err)
			continue
		}
		if id, err := res.LastInsertId(); err == nil {
			entries[i].ID = uint64(id)
		}
	}
	return results, nil
}

// GetByID fetches an entry with its creator resolved.
func (r *EntryRepo) GetByID(ctx context.Context, id uint64) (*model.Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, entrySelect+" WHERE e.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Update applies a partial update. It returns ErrNotFound when no row has
// the id.
func (r *EntryRepo) Update(ctx context.Context, id uint64, p EntryPatch) error {
	as := p.assignments()
	if len(as) == 0 {
		return nil
	}
	sets := make([]string, 0, len(as)+1)
	args := make([]any, 0, len(as)+1)
	for _, a := range as {
		sets = append(sets, a.column+" = ?")
		args = append(args, a.value)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP(3)")
	args = append(args, id)
	q := "UPDATE entries SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := r.db.ExecContext(ctx, q, args...)
	return affectedOrNotFound(res, err)
}

// Delete removes an entry by id, returning ErrNotFound if it is absent.
func (r *EntryRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	return affectedOrNotFound(res, err)
}
