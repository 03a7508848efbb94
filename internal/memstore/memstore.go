// Package memstore keeps users and entries in process memory. It mirrors
// the MySQL repositories, including their uniqueness rules and sentinel
// errors, and backs STORE=memory and the handler tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/repository"
	"github.com/iliyamo/address-book/internal/utils"
)

type state struct {
	mu        sync.RWMutex
	users     map[uint64]model.User
	entries   map[uint64]model.Entry
	nextUser  uint64
	nextEntry uint64
	cost      int
	now       func() time.Time
}

func (s *state) stamp() time.Time { return s.now().UTC().Truncate(time.Millisecond) }

// Store holds both collections. Users and Entries share one lock so that
// entry reads can resolve creator names.
type Store struct {
	Users   *Users
	Entries *Entries
}

// New returns an empty store hashing passwords at cost.
func New(cost int) *Store {
	if cost <= 0 {
		cost = utils.DefaultBcryptCost
	}
	s := &state{
		users:   map[uint64]model.User{},
		entries: map[uint64]model.Entry{},
		cost:    cost,
		now:     time.Now,
	}
	return &Store{Users: &Users{s: s}, Entries: &Entries{s: s}}
}

// SetClock replaces the time source used for timestamps.
func (st *Store) SetClock(now func() time.Time) {
	st.Users.s.mu.Lock()
	st.Users.s.now = now
	st.Users.s.mu.Unlock()
}

// Users implements the credential store.
type Users struct{ s *state }

func (u *Users) Create(_ context.Context, username, password string, role model.Role) (uint64, error) {
	hash, err := utils.EnsureHashed(password, u.s.cost)
	if err != nil {
		return 0, err
	}
	name := repository.NormalizeUsername(username)
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if existing.Username == name {
			return 0, repository.ErrUsernameExists
		}
	}
	u.s.nextUser++
	now := u.s.stamp()
	u.s.users[u.s.nextUser] = model.User{
		ID: u.s.nextUser, Username: name, PasswordHash: hash, Role: role,
		MustChangePassword: true, CreatedAt: now, UpdatedAt: now,
	}
	return u.s.nextUser, nil
}

func (u *Users) GetByUsername(_ context.Context, username string) (model.User, error) {
	name := repository.NormalizeUsername(username)
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, usr := range u.s.users {
		if usr.Username == name {
			return usr, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (u *Users) GetByID(_ context.Context, id uint64) (model.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	usr, ok := u.s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	usr.PasswordHash = ""
	return usr, nil
}

func (u *Users) List(_ context.Context) ([]model.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	out := make([]model.User, 0, len(u.s.users))
	for _, usr := range u.s.users {
		usr.PasswordHash = ""
		out = append(out, usr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (u *Users) ChangeOwnPassword(_ context.Context, id uint64, password string) error {
	return u.setPassword(id, password, false)
}

func (u *Users) SetPasswordByAdmin(_ context.Context, id uint64, password string) error {
	return u.setPassword(id, password, true)
}

func (u *Users) setPassword(id uint64, password string, mustChange bool) error {
	hash, err := utils.EnsureHashed(password, u.s.cost)
	if err != nil {
		return err
	}
	return u.update(id, func(usr *model.User) {
		usr.PasswordHash = hash
		usr.MustChangePassword = mustChange
	})
}

func (u *Users) UpdateRole(_ context.Context, id uint64, role model.Role) error {
	return u.update(id, func(usr *model.User) { usr.Role = role })
}

func (u *Users) ForcePasswordReset(_ context.Context, id uint64) error {
	return u.update(id, func(usr *model.User) { usr.MustChangePassword = true })
}

func (u *Users) update(id uint64, fn func(*model.User)) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	usr, ok := u.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&usr)
	usr.UpdatedAt = u.s.stamp()
	u.s.users[id] = usr
	return nil
}

// Delete refuses to remove a user who still owns entries, like the
// foreign key in the MySQL schema.
func (u *Users) Delete(_ context.Context, id uint64) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	for _, e := range u.s.entries {
		if e.CreatedBy.ID == id {
			return repository.ErrConflict
		}
	}
	delete(u.s.users, id)
	return nil
}

// Entries implements the entry store.
type Entries struct{ s *state }

func identity(name, line1, line2, zipcode string) string {
	return strings.ToLower(name + "\x00" + line1 + "\x00" + line2 + "\x00" + zipcode)
}

func entryIdentity(e model.Entry) string {
	return identity(e.Name, e.AddressLine1, e.AddressLine2, e.Zipcode)
}

// resolve fills in the creator username. Callers hold the lock.
func (r *Entries) resolve(e model.Entry) model.Entry {
	e.CreatedBy.Username = r.s.users[e.CreatedBy.ID].Username
	return e
}

func (r *Entries) duplicate(key string, excludeID uint64) bool {
	for id, e := range r.s.entries {
		if id != excludeID && entryIdentity(e) == key {
			return true
		}
	}
	return false
}

func (r *Entries) FindDuplicate(_ context.Context, name, line1, line2, zipcode string, excludeID uint64) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.duplicate(identity(name, line1, line2, zipcode), excludeID), nil
}

// insert stores e under a new id. Callers hold the write lock.
func (r *Entries) insert(e *model.Entry) error {
	if r.duplicate(entryIdentity(*e), 0) {
		return repository.ErrDuplicateEntry
	}
	if _, ok := r.s.users[e.CreatedBy.ID]; !ok {
		return repository.ErrConflict
	}
	r.s.nextEntry++
	now := r.s.stamp()
	e.ID = r.s.nextEntry
	e.CreatedAt, e.UpdatedAt = now, now
	r.s.entries[e.ID] = *e
	*e = r.resolve(*e)
	return nil
}

func (r *Entries) Create(_ context.Context, e *model.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insert(e)
}

func (r *Entries) InsertBatch(_ context.Context, entries []model.Entry) ([]error, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	results := make([]error, len(entries))
	for i := range entries {
		results[i] = r.insert(&entries[i])
	}
	return results, nil
}

func (r *Entries) GetByID(_ context.Context, id uint64) (*model.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e = r.resolve(e)
	return &e, nil
}

func (r *Entries) Update(_ context.Context, id uint64, p repository.EntryPatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.entries[id]
	if !ok {
		return repository.ErrNotFound
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&e.Name, p.Name)
	apply(&e.AddressLine1, p.AddressLine1)
	apply(&e.AddressLine2, p.AddressLine2)
	apply(&e.Zipcode, p.Zipcode)
	apply(&e.City, p.City)
	apply(&e.Floor, p.Floor)
	apply(&e.Door, p.Door)
	apply(&e.Telephone, p.Telephone)
	apply(&e.Email, p.Email)
	if r.duplicate(entryIdentity(e), id) {
		return repository.ErrDuplicateEntry
	}
	e.UpdatedAt = r.s.stamp()
	r.s.entries[id] = e
	return nil
}

func (r *Entries) Delete(_ context.Context, id uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.entries[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.entries, id)
	return nil
}
