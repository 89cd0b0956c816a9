package expense

import (
	"bytes"
	"context"
	"encoding/csv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Analytics", func() {
	var (
		ctx     context.Context
		db      *mockDB
		service *Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newMockDB()
		timeSrc := &mockTimeSource{now: time.Date(2024, 2, 20, 12, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, newMockScanner(), newMockStorage(), &mockIDGenerator{id: "id"}, timeSrc)

		for _, e := range []*Expense{
			{UserID: 1, Name: "Rent", Amount: 100000, Category: "Housing", Date: "2024-02-01"},
			{UserID: 1, Name: "Groceries", Amount: 5250, Category: "Food", Date: "2024-02-10"},
			{UserID: 1, Name: "Dinner", Amount: 3000, Category: "Food", Date: "2024-01-28"},
			{UserID: 1, Name: "Cash", Amount: 1000, Category: "", Date: "2024-01-05"},
			{UserID: 1, Name: "Bus", Amount: 250, Category: "Travel", Date: "2023-12-31"},
			{UserID: 1, Name: "Parking", Amount: 500, Category: "Travel", Date: "2024-02-15", ReceiptFile: "receipts/1/p.jpg"},
			{UserID: 2, Name: "Other user", Amount: 999999, Category: "Food", Date: "2024-02-10"},
		} {
			Expect(db.SaveExpense(ctx, e)).To(Succeed())
		}
	})

	Describe("DashboardStats", func() {
		It("should total everything and the current month", func() {
			stats, err := service.DashboardStats(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.TotalSpent).To(Equal(1100.0))
			Expect(stats.ThisMonthSpent).To(Equal(1057.5))
			Expect(stats.ReceiptCount).To(Equal(6))
		})

		It("should count the empty category as its own", func() {
			stats, err := service.DashboardStats(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.CategoryCount).To(Equal(4))
		})

		It("should be all zero for a user with no expenses", func() {
			stats, err := service.DashboardStats(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(*stats).To(Equal(DashboardStats{}))
		})
	})

	Describe("Analytics", func() {
		var analytics *Analytics

		BeforeEach(func() {
			var err error
			analytics, err = service.Analytics(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should count expenses for the user only", func() {
			Expect(analytics.TotalExpenses).To(Equal(6))
			Expect(analytics.TotalSpent).To(Equal(1100.0))
			Expect(analytics.MonthlyCount).To(Equal(3))
		})

		It("should group by month in order", func() {
			Expect(analytics.Monthly).To(Equal([]LabeledTotal{
				{Label: "2023-12", Total: 2.5},
				{Label: "2024-01", Total: 40},
				{Label: "2024-02", Total: 1057.5},
			}))
		})

		It("should label uncategorized spending", func() {
			Expect(analytics.Categories).To(ContainElement(LabeledTotal{Label: "Uncategorized", Total: 10}))
			Expect(analytics.CategoryCount).To(Equal(4))
		})

		It("should list the five largest expenses, largest first", func() {
			Expect(analytics.TopExpenses).To(HaveLen(5))
			Expect(analytics.TopExpenses[0].Name).To(Equal("Rent"))
			Expect(analytics.TopExpenses[1].Name).To(Equal("Groceries"))
			Expect(analytics.TopExpenses[4].Name).To(Equal("Parking"))
		})
	})

	Describe("Report", func() {
		It("should leave uncategorized spending out of the breakdown", func() {
			report, err := service.Report(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.CategoryCount).To(Equal(3))
			Expect(report.Categories).To(Equal([]LabeledTotal{
				{Label: "Food", Total: 82.5},
				{Label: "Housing", Total: 1000},
				{Label: "Travel", Total: 7.5},
			}))
			Expect(report.TotalSpent).To(Equal(1100.0))
		})
	})

	Describe("WriteReportCSV", func() {
		It("should write a header and one row per expense, newest first", func() {
			var buf bytes.Buffer
			Expect(service.WriteReportCSV(ctx, 1, &buf)).To(Succeed())

			records, err := csv.NewReader(&buf).ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(7))
			Expect(records[0]).To(Equal([]string{"id", "date", "name", "category", "amount", "receipt_file"}))
			Expect(records[1][1:]).To(Equal([]string{"2024-02-15", "Parking", "Travel", "5.00", "receipts/1/p.jpg"}))
			Expect(records[6][1:]).To(Equal([]string{"2023-12-31", "Bus", "Travel", "2.50", ""}))
		})
	})
})
