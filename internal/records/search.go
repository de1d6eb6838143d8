package records

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/models"
)

// Search limits per record type.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
)

// Hit is one search result.
type Hit struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type searchTarget struct {
	recordType string
	model      any
	columns    []string
}

var searchTargets = []searchTarget{
	{models.RecordDeal, &models.Deal{}, []string{"name", "address"}},
	{models.RecordProject, &models.Project{}, []string{"name"}},
	{models.RecordJob, &models.Job{}, []string{"name", "address", "lot"}},
	{models.RecordVendor, &models.Vendor{}, []string{"name"}},
	{models.RecordInvestor, &models.Investor{}, []string{"name", "email"}},
	{"customer", &models.Customer{}, []string{"name", "email"}},
}

// Search finds deals, projects, jobs, vendors, investors and customers whose
// names contain q, case-insensitively. At most limit hits are returned per
// record type; limit defaults to DefaultSearchLimit and is capped at
// MaxSearchLimit.
func Search(ctx context.Context, db *gorm.DB, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Hit{}, nil
	}
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}
	like := "%" + strings.ToLower(q) + "%"

	hits := []Hit{}
	for _, target := range searchTargets {
		conds := make([]string, len(target.columns))
		args := make([]any, len(target.columns))
		for i, col := range target.columns {
			conds[i] = "LOWER(" + col + ") LIKE ?"
			args[i] = like
		}

		var rows []struct {
			ID   uint
			Name string
		}
		err := db.WithContext(ctx).Model(target.model).
			Select("id", "name").
			Where(strings.Join(conds, " OR "), args...).
			Order("name").
			Limit(limit).
			Scan(&rows).Error
		if err != nil {
			return nil, Translate(err)
		}
		for _, row := range rows {
			hits = append(hits, Hit{Type: target.recordType, ID: row.ID, Name: row.Name})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return strings.HasPrefix(strings.ToLower(hits[i].Name), strings.ToLower(q)) &&
			!strings.HasPrefix(strings.ToLower(hits[j].Name), strings.ToLower(q))
	})
	return hits, nil
}
