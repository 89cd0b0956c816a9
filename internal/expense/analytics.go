package expense

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// uncategorized labels expenses without a category in analytics
const uncategorized = "Uncategorized"

// topExpenseCount is how many of the largest expenses analytics lists
const topExpenseCount = 5

// DashboardStats are the headline numbers on the home page
type DashboardStats struct {
	TotalSpent     float64 `json:"total_spent"`
	ThisMonthSpent float64 `json:"this_month_spent"`
	CategoryCount  int     `json:"category_count"`
	ReceiptCount   int     `json:"receipt_count"`
}

// LabeledTotal is one bar of a chart
type LabeledTotal struct {
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

// TopExpense is one of the largest expenses
type TopExpense struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Category string  `json:"category"`
	Date     string  `json:"date"`
}

// Analytics summarizes a user's spending
type Analytics struct {
	TotalSpent    float64        `json:"total_spent"`
	TotalExpenses int            `json:"total_expenses"`
	MonthlyCount  int            `json:"monthly_count"`
	CategoryCount int            `json:"category_count"`
	TopExpenses   []TopExpense   `json:"top_expenses"`
	Monthly       []LabeledTotal `json:"monthly"`
	Categories    []LabeledTotal `json:"categories"`
}

// inMonth reports whether a YYYY-MM-DD date falls in the month of now
func inMonth(date string, now time.Time) bool {
	return strings.HasPrefix(date, now.Format("2006-01")+"-")
}

// DashboardStats computes the home page numbers. The month is taken in UTC.
func (s *Service) DashboardStats(ctx context.Context, userID int64) (*DashboardStats, error) {
	expenses, err := s.ListExpenses(ctx, userID, ExpenseFilter{})
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now().UTC()
	var total, thisMonth int64
	categories := make(map[string]struct{})
	for _, e := range expenses {
		total += e.Amount
		if inMonth(e.Date, now) {
			thisMonth += e.Amount
		}
		categories[e.Category] = struct{}{}
	}

	return &DashboardStats{
		TotalSpent:     centsToAmount(total),
		ThisMonthSpent: centsToAmount(thisMonth),
		CategoryCount:  len(categories),
		ReceiptCount:   len(expenses),
	}, nil
}

// summarize builds an Analytics view. With labelEmpty, expenses without a
// category are grouped under "Uncategorized"; otherwise they are left out of
// the category breakdown and count.
func summarize(expenses []*Expense, now time.Time, labelEmpty bool) *Analytics {
	a := &Analytics{
		TotalExpenses: len(expenses),
		TopExpenses:   make([]TopExpense, 0, topExpenseCount),
		Monthly:       make([]LabeledTotal, 0),
		Categories:    make([]LabeledTotal, 0),
	}

	var total int64
	monthly := make(map[string]int64)
	categories := make(map[string]int64)
	for _, e := range expenses {
		total += e.Amount
		if inMonth(e.Date, now) {
			a.MonthlyCount++
		}
		if len(e.Date) >= 7 {
			monthly[e.Date[:7]] += e.Amount
		}

		category := e.Category
		if category == "" {
			if !labelEmpty {
				continue
			}
			category = uncategorized
		}
		categories[category] += e.Amount
	}
	a.TotalSpent = centsToAmount(total)
	a.CategoryCount = len(categories)

	a.Monthly = sortedTotals(monthly)
	a.Categories = sortedTotals(categories)

	top := make([]*Expense, len(expenses))
	copy(top, expenses)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Amount > top[j].Amount
	})
	if len(top) > topExpenseCount {
		top = top[:topExpenseCount]
	}
	for _, e := range top {
		a.TopExpenses = append(a.TopExpenses, TopExpense{
			ID:       e.ID,
			Name:     e.Name,
			Amount:   centsToAmount(e.Amount),
			Category: e.Category,
			Date:     e.Date,
		})
	}

	return a
}

// sortedTotals converts a label->cents map to totals ordered by label
func sortedTotals(totals map[string]int64) []LabeledTotal {
	labels := make([]string, 0, len(totals))
	for label := range totals {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	out := make([]LabeledTotal, 0, len(labels))
	for _, label := range labels {
		out = append(out, LabeledTotal{Label: label, Total: centsToAmount(totals[label])})
	}
	return out
}

// Analytics summarizes all of the user's expenses
func (s *Service) Analytics(ctx context.Context, userID int64) (*Analytics, error) {
	expenses, err := s.ListExpenses(ctx, userID, ExpenseFilter{})
	if err != nil {
		return nil, err
	}
	return summarize(expenses, s.timeSource.Now().UTC(), true), nil
}

// Report is the printable summary; uncategorized spending is left out of the
// category breakdown
func (s *Service) Report(ctx context.Context, userID int64) (*Analytics, error) {
	expenses, err := s.ListExpenses(ctx, userID, ExpenseFilter{})
	if err != nil {
		return nil, err
	}
	return summarize(expenses, s.timeSource.Now().UTC(), false), nil
}

// reportHeader is the CSV export's first row
var reportHeader = []string{"id", "date", "name", "category", "amount", "receipt_file"}

// WriteReportCSV writes every expense of the user as CSV, newest first
func (s *Service) WriteReportCSV(ctx context.Context, userID int64, w io.Writer) error {
	expenses, err := s.ListExpenses(ctx, userID, ExpenseFilter{})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, e := range expenses {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.Date,
			e.Name,
			e.Category,
			formatCents(e.Amount),
			e.ReceiptFile,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
