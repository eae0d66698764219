package memory

import (
	"context"
	"sort"
	"sync"

	"mcdry/internal/sheets"
)

// Store is an in-process BalanceMirror used when no spreadsheet is configured.
type Store struct {
	mu   sync.Mutex
	rows map[int64]sheets.MemberRow
}

var _ sheets.BalanceMirror = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[int64]sheets.MemberRow)}
}

func (s *Store) UpsertMember(_ context.Context, row sheets.MemberRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.MemberID] = row
	return nil
}

func (s *Store) RemoveMember(_ context.Context, memberID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, memberID)
	return nil
}

func (s *Store) ReplaceAll(_ context.Context, rows []sheets.MemberRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[int64]sheets.MemberRow, len(rows))
	for _, r := range rows {
		s.rows[r.MemberID] = r
	}
	return nil
}

// Rows returns the mirrored rows ordered by member id.
func (s *Store) Rows() []sheets.MemberRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.MemberRow, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out
}

func (s *Store) Get(memberID int64) (sheets.MemberRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[memberID]
	return r, ok
}
