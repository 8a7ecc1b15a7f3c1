package resolvers

import (
	"context"
	"sync"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
)

// TieBreakCall records one tie-break escalation
type TieBreakCall struct {
	Tied       []model.Team
	PendingFTE float64
}

// Scripted answers escalations from queued responses and records every call.
// When a queue runs dry the resolver answers Skipped.
type Scripted struct {
	mu sync.Mutex

	ProgramAnswers      []ProgramResolution
	SubstitutionAnswers []SubstitutionResolution
	SPTAnswers          []SPTResolution
	TieBreakAnswers     []TieBreakResolution

	ProgramCalls      []ProgramRequest
	SubstitutionCalls [][]SubstitutionNeed
	SPTCalls          [][]model.Staff
	TieBreakCalls     []TieBreakCall
}

// Set exposes the scripted answers as a resolver set
func (s *Scripted) Set() Set {
	return Set{
		SpecialProgram: s.specialProgram,
		Substitution:   s.substitution,
		SPTFinalEdit:   s.sptFinalEdit,
		TieBreak:       s.tieBreak,
	}
}

func (s *Scripted) specialProgram(ctx context.Context, req ProgramRequest) (ProgramResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProgramCalls = append(s.ProgramCalls, req)
	if len(s.ProgramAnswers) == 0 {
		return ProgramResolution{Outcome: Skipped}, nil
	}
	answer := s.ProgramAnswers[0]
	s.ProgramAnswers = s.ProgramAnswers[1:]
	return answer, nil
}

func (s *Scripted) substitution(ctx context.Context, needs []SubstitutionNeed) (SubstitutionResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SubstitutionCalls = append(s.SubstitutionCalls, needs)
	if len(s.SubstitutionAnswers) == 0 {
		return SubstitutionResolution{Outcome: Skipped}, nil
	}
	answer := s.SubstitutionAnswers[0]
	s.SubstitutionAnswers = s.SubstitutionAnswers[1:]
	return answer, nil
}

func (s *Scripted) sptFinalEdit(ctx context.Context, spts []model.Staff, current []model.TherapistAllocation) (SPTResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SPTCalls = append(s.SPTCalls, spts)
	if len(s.SPTAnswers) == 0 {
		return SPTResolution{Outcome: Skipped}, nil
	}
	answer := s.SPTAnswers[0]
	s.SPTAnswers = s.SPTAnswers[1:]
	return answer, nil
}

func (s *Scripted) tieBreak(ctx context.Context, tied []model.Team, pendingFTE float64) (TieBreakResolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TieBreakCalls = append(s.TieBreakCalls, TieBreakCall{Tied: append([]model.Team(nil), tied...), PendingFTE: pendingFTE})
	if len(s.TieBreakAnswers) == 0 {
		return TieBreakResolution{Outcome: Skipped}, nil
	}
	answer := s.TieBreakAnswers[0]
	s.TieBreakAnswers = s.TieBreakAnswers[1:]
	return answer, nil
}

// Blocking is a tie-break resolver that waits until its context is done,
// standing in for a dialog that is never answered
func Blocking(started chan<- struct{}) TieBreakResolver {
	var once sync.Once
	return func(ctx context.Context, tied []model.Team, pendingFTE float64) (TieBreakResolution, error) {
		if started != nil {
			once.Do(func() { close(started) })
		}
		<-ctx.Done()
		return TieBreakResolution{Outcome: Cancelled}, ctx.Err()
	}
}
