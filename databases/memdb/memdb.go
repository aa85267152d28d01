// Package memdb is an in-memory implementation of the workflow stores with the same
// versioned swap semantics as the mongo collections. It backs tests and DB_URI=memory://.
package memdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/databases"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/workflow"
)

// Store holds every collection behind a single lock
type Store struct {
	mu             sync.Mutex
	cases          map[primitive.ObjectID]models.Case
	suspects       map[primitive.ObjectID]models.Suspect
	interrogations map[primitive.ObjectID]models.Interrogation
	verdicts       map[primitive.ObjectID]models.Verdict
	users          map[primitive.ObjectID]models.User
}

// New returns an empty Store
func New() *Store {
	return &Store{
		cases:          make(map[primitive.ObjectID]models.Case),
		suspects:       make(map[primitive.ObjectID]models.Suspect),
		interrogations: make(map[primitive.ObjectID]models.Interrogation),
		verdicts:       make(map[primitive.ObjectID]models.Verdict),
		users:          make(map[primitive.ObjectID]models.User),
	}
}

func get[T any](s *Store, m map[primitive.ObjectID]T, id primitive.ObjectID, clone func(T) T) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := m[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := clone(v)
	return &out, nil
}

func swap[T any](s *Store, m map[primitive.ObjectID]T, id primitive.ObjectID, next T, version func(T) int32, clone func(T) T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := m[id]
	if !ok {
		return models.ErrNotFound
	}
	if version(cur) != version(next) {
		return models.ErrVersionConflict
	}
	m[id] = clone(next)
	return nil
}

// GetCase returns a copy of the case
func (s *Store) GetCase(_ context.Context, id primitive.ObjectID) (*models.Case, error) {
	return get(s, s.cases, id, models.Case.Clone)
}

// InsertCase stores c at version 0
func (s *Store) InsertCase(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Version = 0
	s.cases[c.ID] = c.Clone()
	return nil
}

// SwapCase writes c if the stored version equals c.Version
func (s *Store) SwapCase(_ context.Context, c *models.Case) error {
	next := c.Clone()
	next.Version++
	err := swap(s, s.cases, c.ID, *c, func(c models.Case) int32 { return c.Version }, func(models.Case) models.Case { return next })
	if err != nil {
		return err
	}
	c.Version++
	return nil
}

// ListCases filters, sorts newest first and pages
func (s *Store) ListCases(_ context.Context, q workflow.CaseQuery) ([]models.Case, int64, error) {
	s.mu.Lock()
	var all []models.Case
	for _, c := range s.cases {
		if q.Status != models.StatusUnknown && c.Details.Status != q.Status {
			continue
		}
		if q.CreatorID != "" && c.Details.CreatorID != q.CreatorID {
			continue
		}
		all = append(all, c.Clone())
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Details.CreatedAt != all[j].Details.CreatedAt {
			return all[i].Details.CreatedAt > all[j].Details.CreatedAt
		}
		return all[i].ID.Hex() > all[j].ID.Hex()
	})
	q = q.Normalized()
	return page(all, q.Limit, q.Page), int64(len(all)), nil
}

// page slices out page p. Pages past the end are empty.
func page[T any](all []T, limit, p int) []T {
	pages := (len(all) + limit - 1) / limit
	if p-1 >= pages {
		return []T{}
	}
	start := (p - 1) * limit
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func sameSuspect(s models.Suspect) models.Suspect { return s }

// GetSuspect returns a copy of the suspect
func (s *Store) GetSuspect(_ context.Context, id primitive.ObjectID) (*models.Suspect, error) {
	return get(s, s.suspects, id, sameSuspect)
}

// InsertSuspect stores sus at version 0
func (s *Store) InsertSuspect(_ context.Context, sus *models.Suspect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sus.Version = 0
	s.suspects[sus.ID] = *sus
	return nil
}

// SwapSuspect writes sus if the stored version equals sus.Version
func (s *Store) SwapSuspect(_ context.Context, sus *models.Suspect) error {
	next := *sus
	next.Version++
	err := swap(s, s.suspects, sus.ID, *sus, func(v models.Suspect) int32 { return v.Version }, func(models.Suspect) models.Suspect { return next })
	if err != nil {
		return err
	}
	sus.Version++
	return nil
}

// CountSuspectsByCase counts suspects on caseID
func (s *Store) CountSuspectsByCase(ctx context.Context, caseID string) (int64, error) {
	list, err := s.ListSuspectsByCase(ctx, caseID)
	return int64(len(list)), err
}

// ListSuspectsByCase returns the suspects on caseID
func (s *Store) ListSuspectsByCase(_ context.Context, caseID string) ([]models.Suspect, error) {
	return s.filterSuspects(func(v models.Suspect) bool { return v.Details.CaseID == caseID }), nil
}

// ListUnarrestedSuspects returns every suspect not yet arrested
func (s *Store) ListUnarrestedSuspects(_ context.Context) ([]models.Suspect, error) {
	return s.filterSuspects(func(v models.Suspect) bool { return v.Details.Status != models.SuspectArrested }), nil
}

func (s *Store) filterSuspects(keep func(models.Suspect) bool) []models.Suspect {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Suspect{}
	for _, v := range s.suspects {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

// GetInterrogation returns a copy of the interrogation
func (s *Store) GetInterrogation(_ context.Context, id primitive.ObjectID) (*models.Interrogation, error) {
	return get(s, s.interrogations, id, models.Interrogation.Clone)
}

// InsertInterrogation stores i at version 0
func (s *Store) InsertInterrogation(_ context.Context, i *models.Interrogation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i.Version = 0
	s.interrogations[i.ID] = i.Clone()
	return nil
}

// SwapInterrogation writes i if the stored version equals i.Version
func (s *Store) SwapInterrogation(_ context.Context, i *models.Interrogation) error {
	next := i.Clone()
	next.Version++
	err := swap(s, s.interrogations, i.ID, *i, func(v models.Interrogation) int32 { return v.Version }, func(models.Interrogation) models.Interrogation { return next })
	if err != nil {
		return err
	}
	i.Version++
	return nil
}

// GetVerdict returns a copy of the verdict
func (s *Store) GetVerdict(_ context.Context, id primitive.ObjectID) (*models.Verdict, error) {
	return get(s, s.verdicts, id, models.Verdict.Clone)
}

// InsertVerdict stores v at version 0
func (s *Store) InsertVerdict(_ context.Context, v *models.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Version = 0
	s.verdicts[v.ID] = v.Clone()
	return nil
}

// SwapVerdict writes v if the stored version equals v.Version
func (s *Store) SwapVerdict(_ context.Context, v *models.Verdict) error {
	next := v.Clone()
	next.Version++
	err := swap(s, s.verdicts, v.ID, *v, func(v models.Verdict) int32 { return v.Version }, func(models.Verdict) models.Verdict { return next })
	if err != nil {
		return err
	}
	v.Version++
	return nil
}

// CountVerdicts counts verdicts for a suspect on a case
func (s *Store) CountVerdicts(_ context.Context, caseID, suspectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, v := range s.verdicts {
		if v.Details.CaseID == caseID && v.Details.SuspectID == suspectID {
			n++
		}
	}
	return n, nil
}

func cloneUser(u models.User) models.User {
	u.Details.Roles = append([]string(nil), u.Details.Roles...)
	return u
}

// GetUser returns a copy of the user
func (s *Store) GetUser(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	return get(s, s.users, id, cloneUser)
}

// FindUserByEmail looks an account up by email, ignoring case
func (s *Store) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Details.Email == email {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// InsertUser stores a new account. Emails are unique.
func (s *Store) InsertUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Details.Email = strings.ToLower(u.Details.Email)
	for _, existing := range s.users {
		if existing.Details.Email == u.Details.Email {
			return databases.ErrEmailTaken
		}
	}
	u.Version = 0
	s.users[u.ID] = cloneUser(*u)
	return nil
}
