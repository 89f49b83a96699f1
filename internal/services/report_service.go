package services

import (
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/embakulas/expense-tracker/internal/middleware"
)

// ReportService is the read-only aggregation layer over the transaction and
// balance stores. It never writes.
type ReportService struct {
	db  *sql.DB
	now func() time.Time
}

func NewReportService(db *sql.DB) *ReportService {
	return &ReportService{
		db:  db,
		now: time.Now,
	}
}

// MonthlyTotal is one bar of the monthly expense trend.
type MonthlyTotal struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// WeeklyBreakdown compares week-of-month spend for the current and previous month.
type WeeklyBreakdown struct {
	Week      int             `json:"week"`
	ThisMonth decimal.Decimal `json:"this_month"`
	LastMonth decimal.Decimal `json:"last_month"`
}

// CategoryTotal is one row of a category or subcategory breakdown.
type CategoryTotal struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
}

// SummaryReport bundles the dashboard metrics.
type SummaryReport struct {
	SalaryIncome          decimal.Decimal `json:"salary_income"`
	MonthToDateSpend      decimal.Decimal `json:"month_to_date_spend"`
	ProjectedMonthlySpend decimal.Decimal `json:"projected_monthly_spend"`
	CreditCardPayments    decimal.Decimal `json:"credit_card_payments"`
	SplitwisePayments     decimal.Decimal `json:"splitwise_payments"`
	IndiaTransfers        decimal.Decimal `json:"india_transfers"`
	CreditCardOutstanding decimal.Decimal `json:"credit_card_outstanding"`
	SplitwiseOutstanding  decimal.Decimal `json:"splitwise_outstanding"`
}

// weekOfMonth buckets a date into its week of the month using a Monday-based
// offset of the month's first day: floor((day + offset - 1) / 7) + 1.
func weekOfMonth(t time.Time) int {
	firstDay := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	// Monday = 0 ... Sunday = 6
	offset := (int(firstDay.Weekday()) + 6) % 7
	adjusted := t.Day() + offset
	return (adjusted-1)/7 + 1
}

// GetMonthlyTrend returns expense totals for the last four months
// @Summary Monthly expense trend
// @Tags reports
// @Produce json
// @Success 200 {array} MonthlyTotal
// @Router /reports/monthly [get]
func (rp *ReportService) GetMonthlyTrend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := rp.db.Query(`SELECT date_trunc('month', date)::date AS month, COALESCE(SUM(amount), 0) FROM expenses WHERE user_id = $1 AND type = 'expense' GROUP BY month ORDER BY month ASC`, userID)
	if err != nil {
		log.Printf("[REPORTS] Monthly trend query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to compute monthly trend", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	totals := []MonthlyTotal{}
	for rows.Next() {
		var month time.Time
		var total decimal.Decimal
		if err := rows.Scan(&month, &total); err != nil {
			SendErrorResponse(w, "Failed to compute monthly trend", http.StatusInternalServerError, nil)
			return
		}
		totals = append(totals, MonthlyTotal{Month: month.Format("Jan 2006"), Total: total})
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to compute monthly trend", http.StatusInternalServerError, nil)
		return
	}

	if len(totals) > 4 {
		totals = totals[len(totals)-4:]
	}

	SendJSON(w, http.StatusOK, totals)
}

// GetWeeklyBreakdown compares weekly spend for this month and last month
// @Summary Weekly spend breakdown
// @Tags reports
// @Produce json
// @Success 200 {array} WeeklyBreakdown
// @Router /reports/weekly [get]
func (rp *ReportService) GetWeeklyBreakdown(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	now := rp.now()
	thisMonthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthStart := thisMonthStart.AddDate(0, -1, 0)
	nextMonthStart := thisMonthStart.AddDate(0, 1, 0)

	rows, err := rp.db.Query(`SELECT date, amount FROM expenses WHERE user_id = $1 AND type = 'expense' AND date >= $2 AND date < $3`,
		userID, lastMonthStart, nextMonthStart)
	if err != nil {
		log.Printf("[REPORTS] Weekly breakdown query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to compute weekly breakdown", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	var thisMonth, lastMonth [5]decimal.Decimal
	for rows.Next() {
		var date time.Time
		var amount decimal.Decimal
		if err := rows.Scan(&date, &amount); err != nil {
			SendErrorResponse(w, "Failed to compute weekly breakdown", http.StatusInternalServerError, nil)
			return
		}

		week := weekOfMonth(date)
		if week > 4 {
			// only the first four weeks are broken out
			continue
		}
		if !date.Before(thisMonthStart) {
			thisMonth[week] = thisMonth[week].Add(amount)
		} else {
			lastMonth[week] = lastMonth[week].Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to compute weekly breakdown", http.StatusInternalServerError, nil)
		return
	}

	breakdown := make([]WeeklyBreakdown, 0, 4)
	for week := 1; week <= 4; week++ {
		breakdown = append(breakdown, WeeklyBreakdown{
			Week:      week,
			ThisMonth: thisMonth[week],
			LastMonth: lastMonth[week],
		})
	}

	SendJSON(w, http.StatusOK, breakdown)
}

// GetCategoryBreakdown returns expense totals grouped by category
// @Summary Category-wise expense breakdown
// @Tags reports
// @Produce json
// @Success 200 {array} CategoryTotal
// @Router /reports/categories [get]
func (rp *ReportService) GetCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := rp.db.Query(`SELECT category, COALESCE(SUM(amount), 0) AS total FROM expenses WHERE user_id = $1 AND type = 'expense' AND category IS NOT NULL AND TRIM(category) <> '' AND category <> 'Income' GROUP BY category ORDER BY total DESC`, userID)
	if err != nil {
		log.Printf("[REPORTS] Category breakdown query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to compute category breakdown", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	totals, err := scanCategoryTotals(rows)
	if err != nil {
		SendErrorResponse(w, "Failed to compute category breakdown", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, totals)
}

// GetSubcategoryBreakdown drills one category down to subcategory totals
// @Summary Subcategory drill-down
// @Tags reports
// @Produce json
// @Param category path string true "Category name"
// @Success 200 {array} CategoryTotal
// @Router /reports/categories/{category} [get]
func (rp *ReportService) GetSubcategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	category := chi.URLParam(r, "category")

	rows, err := rp.db.Query(`SELECT COALESCE(subcategory, ''), COALESCE(SUM(amount), 0) AS total FROM expenses WHERE user_id = $1 AND type = 'expense' AND category = $2 GROUP BY subcategory ORDER BY total DESC`,
		userID, category)
	if err != nil {
		log.Printf("[REPORTS] Subcategory breakdown query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to compute subcategory breakdown", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	totals, err := scanCategoryTotals(rows)
	if err != nil {
		SendErrorResponse(w, "Failed to compute subcategory breakdown", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, totals)
}

// GetSummary returns the dashboard summary metrics
// @Summary Income, projection, debt, and outstanding balances
// @Tags reports
// @Produce json
// @Success 200 {object} SummaryReport
// @Router /reports/summary [get]
func (rp *ReportService) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	summary, err := rp.buildSummary(userID)
	if err != nil {
		log.Printf("[REPORTS] Summary failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to compute summary", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, summary)
}

func (rp *ReportService) buildSummary(userID int) (*SummaryReport, error) {
	var summary SummaryReport

	err := rp.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE user_id = $1 AND type = 'income' AND subcategory = 'Salary'`,
		userID).Scan(&summary.SalaryIncome)
	if err != nil {
		return nil, err
	}

	now := rp.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	err = rp.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE user_id = $1 AND type = 'expense' AND date >= $2 AND date < $3`,
		userID, monthStart, monthStart.AddDate(0, 1, 0)).Scan(&summary.MonthToDateSpend)
	if err != nil {
		return nil, err
	}
	summary.ProjectedMonthlySpend = projectedSpend(summary.MonthToDateSpend, now)

	rows, err := rp.db.Query(`SELECT amount, COALESCE(subcategory, ''), COALESCE(paid_to, '') FROM expenses WHERE user_id = $1 AND type = 'debt_payment'`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var amount decimal.Decimal
		var subcategory, paidTo string
		if err := rows.Scan(&amount, &subcategory, &paidTo); err != nil {
			return nil, err
		}
		if strings.Contains(subcategory, "Credit Card") {
			summary.CreditCardPayments = summary.CreditCardPayments.Add(amount)
		}
		if strings.Contains(subcategory, "Splitwise") {
			summary.SplitwisePayments = summary.SplitwisePayments.Add(amount)
		}
		if containsFold(subcategory, "India Transfer") || containsFold(paidTo, "India Transfer") {
			summary.IndiaTransfers = summary.IndiaTransfers.Add(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = rp.db.QueryRow(`SELECT COALESCE(SUM(used_limit), 0) FROM credit_cards WHERE user_id = $1`,
		userID).Scan(&summary.CreditCardOutstanding)
	if err != nil {
		return nil, err
	}

	err = rp.db.QueryRow(`SELECT COALESCE(SUM(net_balance), 0) FROM splitwise_people WHERE user_id = $1 AND net_balance > 0`,
		userID).Scan(&summary.SplitwiseOutstanding)
	if err != nil {
		return nil, err
	}

	return &summary, nil
}

// projectedSpend extrapolates month-to-date spend to the full month:
// spend / day_of_month * days_in_month.
func projectedSpend(monthToDate decimal.Decimal, now time.Time) decimal.Decimal {
	day := now.Day()
	if day == 0 {
		return decimal.Zero
	}
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return monthToDate.Div(decimal.NewFromInt(int64(day))).Mul(decimal.NewFromInt(int64(daysInMonth))).Round(2)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func scanCategoryTotals(rows *sql.Rows) ([]CategoryTotal, error) {
	totals := []CategoryTotal{}
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Name, &ct.Total); err != nil {
			return nil, err
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}
