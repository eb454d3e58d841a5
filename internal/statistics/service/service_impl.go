package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	semesterdomain "github.com/smallbiznis/bursar/internal/semester/domain"
	"github.com/smallbiznis/bursar/internal/statistics/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const monthLayout = "2006-01"

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Repo         domain.Repository
	SemesterRepo semesterdomain.Repository
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	repo         domain.Repository
	semesterRepo semesterdomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("statistics.service"),
		repo:         p.Repo,
		semesterRepo: p.SemesterRepo,
	}
}

// GetStatistics reports billing totals for one semester, or all semesters
// when semesterID is zero.
func (s *Service) GetStatistics(ctx context.Context, semesterID snowflake.ID) (domain.Statistics, error) {
	if semesterID < 0 {
		return domain.Statistics{}, semesterdomain.ErrInvalidID
	}

	var stats domain.Statistics
	if semesterID > 0 {
		semester, err := s.semesterRepo.FindByID(ctx, s.db, semesterID)
		if err != nil {
			return domain.Statistics{}, err
		}
		if semester == nil {
			return domain.Statistics{}, semesterdomain.ErrNotFound
		}
		stats.SemesterID = &semester.ID
	}

	byStatus, err := s.repo.StatusTotals(ctx, s.db, semesterID)
	if err != nil {
		return domain.Statistics{}, err
	}
	byMethod, err := s.repo.MethodTotals(ctx, s.db, semesterID)
	if err != nil {
		return domain.Statistics{}, err
	}
	byProgram, err := s.repo.ProgramTotals(ctx, s.db, semesterID)
	if err != nil {
		return domain.Statistics{}, err
	}
	payments, err := s.repo.CompletedPayments(ctx, s.db, semesterID)
	if err != nil {
		return domain.Statistics{}, err
	}

	stats.Summary = summarize(byStatus)
	stats.ByStatus = nonNil(byStatus)
	stats.ByMethod = nonNil(byMethod)
	stats.ByProgram = nonNil(byProgram)
	stats.Monthly = monthly(payments)
	return stats, nil
}

func summarize(byStatus []domain.StatusTotal) domain.Summary {
	summary := domain.Summary{
		TotalBilled:      decimal.Zero,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		CollectionRate:   decimal.Zero,
	}
	for _, row := range byStatus {
		summary.InvoiceCount += row.Count
		summary.TotalBilled = summary.TotalBilled.Add(row.FinalAmount)
		summary.TotalCollected = summary.TotalCollected.Add(row.PaidAmount)
		switch row.Status {
		case "UNPAID", "PARTIAL", "OVERDUE":
			summary.TotalOutstanding = summary.TotalOutstanding.Add(row.FinalAmount.Sub(row.PaidAmount))
		}
	}
	if summary.TotalBilled.IsPositive() {
		summary.CollectionRate = summary.TotalCollected.Mul(hundred).Div(summary.TotalBilled).Round(2)
	}
	return summary
}

// monthly buckets payments by calendar month in UTC, oldest first.
func monthly(payments []domain.CompletedPayment) []domain.MonthBucket {
	buckets := make([]domain.MonthBucket, 0)
	index := map[string]int{}
	for _, p := range payments {
		key := p.PaymentDate.UTC().Format(monthLayout)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, domain.MonthBucket{Month: key, Amount: decimal.Zero})
		}
		buckets[i].Count++
		buckets[i].Amount = buckets[i].Amount.Add(p.Amount)
	}
	for i := range buckets {
		buckets[i].Amount = buckets[i].Amount.Round(2)
	}
	return buckets
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
