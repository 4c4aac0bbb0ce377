package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/apperr"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

// StatsService answers /stats.
type StatsService struct {
	repos Repos
	gate  *PermissionGate
}

// NewStatsService wires the service.
func NewStatsService(repos Repos, gate *PermissionGate) *StatsService {
	return &StatsService{repos: repos, gate: gate}
}

// Overview returns system wide counters to the owner and counters of the
// admin's own sections to an admin.
func (s *StatsService) Overview(ctx context.Context, telegramID int64) (models.Statistics, bool, error) {
	p, err := s.gate.Authorize(ctx, telegramID, models.RoleAdmin)
	if err != nil {
		return models.Statistics{}, false, err
	}
	if p.IsOwner() {
		st, err := s.repos.Stats.Overall(ctx)
		if err != nil {
			return models.Statistics{}, true, apperr.Internal(err)
		}
		return st, true, nil
	}
	st, err := s.repos.Stats.ForAdmin(ctx, p.ID)
	if err != nil {
		return models.Statistics{}, false, apperr.Internal(err)
	}
	return st, false, nil
}

// Assignment returns the delivery counts of one assignment.
func (s *StatsService) Assignment(ctx context.Context, telegramID, assignmentID int64) (models.DispatchStats, error) {
	a, err := s.repos.Assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return models.DispatchStats{}, apperr.Internal(err)
	}
	if a == nil {
		return models.DispatchStats{}, apperr.NotFound("assignment not found")
	}
	if _, _, err := s.gate.CheckSectionAdmin(ctx, telegramID, a.SectionID); err != nil {
		return models.DispatchStats{}, err
	}
	st, err := s.repos.Notifications.StatsForAssignment(ctx, assignmentID)
	if err != nil {
		return models.DispatchStats{}, apperr.Internal(err)
	}
	return st, nil
}

// FormatStatistics renders st for chat.
func FormatStatistics(st models.Statistics, overall bool) string {
	var b strings.Builder
	b.WriteString("📊 Statistics\n\n")
	fmt.Fprintf(&b, "📚 Active sections: %d\n", st.ActiveSections)
	fmt.Fprintf(&b, "👥 Approved students: %d\n", st.ApprovedStudents)
	fmt.Fprintf(&b, "⏳ Pending requests: %d\n", st.PendingRequests)
	fmt.Fprintf(&b, "📝 Active assignments: %d", st.ActiveAssignments)
	if overall {
		fmt.Fprintf(&b, "\n👨‍💼 Active admins: %d", st.ActiveAdmins)
	}
	return b.String()
}
