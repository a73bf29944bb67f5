package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/expenfyre/internal/analytics"
	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

// AnalyticsService は集計ハンドラーが必要とするサービスインターフェース。
type AnalyticsService interface {
	Summary(ctx context.Context, actor string, q analytics.Query) (*analytics.Summary, error)
	CategoryBreakdown(ctx context.Context, actor string, q analytics.Query) ([]*analytics.CategoryBreakdown, error)
	MonthlyComparison(ctx context.Context, actor string, q analytics.Query) ([]*analytics.MonthTotal, error)
	BudgetPerformance(ctx context.Context, actor string, q analytics.Query) ([]*analytics.BudgetPerformance, error)
	TopExpenses(ctx context.Context, actor string, q analytics.Query) ([]*model.Expense, error)
	DailyTrend(ctx context.Context, actor string, q analytics.Query) ([]*analytics.DailyTotal, error)
	BudgetUtilization(ctx context.Context, actor string, q analytics.Query) ([]*analytics.MonthUtilization, error)
}

// AnalyticsHandler は集計APIのHTTPハンドラー。
// 全エンドポイントが month, group_id, months, limit の共通クエリを受け付ける。
type AnalyticsHandler struct {
	service AnalyticsService
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

type analyticsFunc func(ctx context.Context, actor string, q analytics.Query) (any, error)

func (h *AnalyticsHandler) serve(run analyticsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		months, err := queryInt(r, "months", 0)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}

		q := r.URL.Query()
		data, err := run(r.Context(), actor, analytics.Query{
			Month:   q.Get("month"),
			GroupID: q.Get("group_id"),
			Months:  months,
			Limit:   limit,
		})
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, data)
	}
}

// Summary は月の合計・件数・予算比などの概要を返す。
// GET /api/analytics/summary
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	h.serve(func(ctx context.Context, actor string, q analytics.Query) (any, error) {
		return h.service.Summary(ctx, actor, q)
	})(w, r)
}

// CategoryBreakdown はカテゴリ別の支出と予算を返す。
// GET /api/analytics/category-breakdown
func (h *AnalyticsHandler) CategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	h.serve(func(ctx context.Context, actor string, q analytics.Query) (any, error) {
		return h.service.CategoryBreakdown(ctx, actor, q)
	})(w, r)
}

// MonthlyComparison は直近months箇月の月別合計を返す。
// GET /api/analytics/monthly-comparison
func (h *AnalyticsHandler) MonthlyComparison(w http.ResponseWriter, r *http.Request) {
	h.serve(func(ctx context.Context, actor string, q analytics.Query) (any, error) {
		return h.service.MonthlyComparison(ctx, actor, q)
	})(w, r)
}

// BudgetPerformance は予算ごとの消化率を返す。
// GET /api/analytics/budget-performance
func (h *AnalyticsHandler) BudgetPerformance(w http.ResponseWriter, r *http.Request) {
	h.serve(func(ctx context.Context, actor string, q analytics.Query) (any, error) {
		return h.service.BudgetPerformance(ctx, actor, q)
	})(w, r)
}

// TopExpenses は金額の大きい支出を返す。
// GET /api/analytics/top-expenses
func (h *AnalyticsHandler) TopExpenses(w http.ResponseWriter, r *http.Request) {
	h.serve(func(ctx context.Context, actor string, q analytics.Query) (any, error) {
		return h.service.TopExpenses(ctx, actor, q)
	})(w, r)
}

// DailyTrend は日別と累計の支出を返す。
// GET /api/analytics/daily-trend
func (h *AnalyticsHandler) DailyTrend(w http.ResponseWriter, r *http.Request) {
	h.serve(func(ctx context.Context, actor string, q analytics.Query) (any, error) {
		return h.service.DailyTrend(ctx, actor, q)
	})(w, r)
}

// BudgetUtilization は月ごとの予算消化率の推移を返す。
// GET /api/analytics/budget-utilization
func (h *AnalyticsHandler) BudgetUtilization(w http.ResponseWriter, r *http.Request) {
	h.serve(func(ctx context.Context, actor string, q analytics.Query) (any, error) {
		return h.service.BudgetUtilization(ctx, actor, q)
	})(w, r)
}
