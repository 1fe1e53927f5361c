package ehr

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ehrchain/core/access"
)

// Share is a count with its percentage of the total.
type Share struct {
	Label   string          `json:"label"`
	Count   int             `json:"count"`
	Percent decimal.Decimal `json:"percent"`
}

// MonthCount is the number of records created in a calendar month (YYYY-MM, UTC).
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Analytics is the aggregate view admins get. It never contains record content beyond
// diagnosis labels.
type Analytics struct {
	GeneratedAt   time.Time      `json:"generatedAt"`
	LedgerHeight  uint64         `json:"ledgerHeight"`
	TotalRecords  int            `json:"totalRecords"`
	Amendments    int            `json:"amendments"`
	TotalPatients int            `json:"totalPatients"`
	TotalDoctors  int            `json:"totalDoctors"`
	TotalAdmins   int            `json:"totalAdmins"`
	ByRecordType  []Share        `json:"byRecordType"`
	ByDiagnosis   []Share        `json:"byDiagnosis"`
	ByMonth       []MonthCount   `json:"byMonth"`
	ByDoctor      map[string]int `json:"byDoctor"`
}

// Analytics computes the admin dashboard aggregates.
func (s *Service) Analytics(ctx context.Context, actorID string) (Analytics, error) {
	if err := s.authorize(actorID, "", access.OpAnalytics); err != nil {
		return Analytics{}, err
	}
	if err := ctx.Err(); err != nil {
		return Analytics{}, err
	}
	s.stateMu.RLock()
	entries := s.index.entries()
	s.stateMu.RUnlock()

	byType := make(map[string]int)
	byDiagnosis := make(map[string]int)
	byMonth := make(map[string]int)
	byDoctor := make(map[string]int)
	amendments := 0
	for _, e := range entries {
		byType[e.RecordType]++
		if e.Diagnosis != "" {
			byDiagnosis[e.Diagnosis]++
		}
		byMonth[e.CreatedAt.UTC().Format("2006-01")]++
		byDoctor[e.AuthorID]++
		if e.Amends != "" {
			amendments++
		}
	}

	roles := s.policy.CountByRole()
	a := Analytics{
		GeneratedAt:   s.now(),
		LedgerHeight:  s.ledger.Len(),
		TotalRecords:  len(entries),
		Amendments:    amendments,
		TotalPatients: roles[access.RolePatient],
		TotalDoctors:  roles[access.RoleDoctor],
		TotalAdmins:   roles[access.RoleAdmin],
		ByRecordType:  shares(byType),
		ByDiagnosis:   shares(byDiagnosis),
		ByDoctor:      byDoctor,
	}
	for m, n := range byMonth {
		a.ByMonth = append(a.ByMonth, MonthCount{Month: m, Count: n})
	}
	sort.Slice(a.ByMonth, func(i, j int) bool { return a.ByMonth[i].Month < a.ByMonth[j].Month })
	return a, nil
}

// shares converts counts into percentages of their sum, largest first.
func shares(counts map[string]int) []Share {
	total := 0
	for _, n := range counts {
		total += n
	}
	out := make([]Share, 0, len(counts))
	if total == 0 {
		return out
	}
	hundred := decimal.NewFromInt(100)
	for label, n := range counts {
		pct := decimal.NewFromInt(int64(n)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(2)
		out = append(out, Share{Label: label, Count: n, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
