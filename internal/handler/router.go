package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier           middleware.AccessVerifier
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger
	StatusRecorder     middleware.StatusRecorder // nilならステータスを計測しない
	MetricsHandler     http.Handler              // nilなら/metricsを公開しない

	// 認証
	AuthService AuthService
	Tokens      TokenManager
	Cleanup     CleanupRunner
	AuthConfig  AuthHandlerConfig

	// ドメイン
	Groups     GroupService
	Expenses   ExpenseService
	Budgets    BudgetService
	Analytics  AnalyticsService
	Categories CategoryService
	Files      FileService
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (認証ルートのみ) Auth → RateLimit
//
// OAuthフロー、ヘルスチェック、ファイル配信、アクセス申請は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	// プリフライトはルーティング前にCORSが204で応答する
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.Tokens, deps.Cleanup, deps.AuthConfig)
	groupHandler := NewGroupHandler(deps.Groups)
	expenseHandler := NewExpenseHandler(deps.Expenses)
	budgetHandler := NewBudgetHandler(deps.Budgets)
	analyticsHandler := NewAnalyticsHandler(deps.Analytics)
	categoryHandler := NewCategoryHandler(deps.Categories)
	fileHandler := NewFileHandler(deps.Files)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeNotFound,
			Message:  "Route not found: " + r.Method + " " + r.URL.Path,
			Category: "system",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, &model.APIError{
			Code:     "METHOD_NOT_ALLOWED",
			Message:  "Method not allowed: " + r.Method + " " + r.URL.Path,
			Category: "system",
		})
	})

	// 認証が必要なルートのミドルウェアスタック: Auth → RateLimit
	requireAuth := chi.Chain(
		middleware.NewAuthMiddleware(deps.Verifier),
		deps.RateLimiter.Middleware(),
	)

	// --- 認証不要のルート ---

	r.Get("/api/health", Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Post("/api/access-request", authHandler.RequestAccess)
	r.Get("/api/file/{filename}", fileHandler.Serve)

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/google", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth...)
			r.Get("/me", authHandler.Me)
			r.Post("/signout", authHandler.SignOut)
			r.Post("/clear-rate-limit", authHandler.ClearRateLimit)
			r.Post("/cleanup", authHandler.Cleanup)
			r.Get("/cleanup/stats", authHandler.CleanupStats)
		})
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(requireAuth...)

		r.Route("/api/groups", func(r chi.Router) {
			r.Get("/", groupHandler.List)
			r.Post("/", groupHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", groupHandler.Update)
				r.Delete("/", groupHandler.Delete)

				r.Get("/members", groupHandler.Members)
				r.Post("/members", groupHandler.AddMember)
				r.Delete("/members/{email}", groupHandler.RemoveMember)
			})
		})

		r.Route("/api/expenses", func(r chi.Router) {
			r.Get("/", expenseHandler.List)
			r.Post("/", expenseHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", expenseHandler.Get)
				r.Put("/", expenseHandler.Replace)
				r.Patch("/", expenseHandler.Update)
				r.Delete("/", expenseHandler.Delete)
			})
		})

		r.Route("/api/budgets", func(r chi.Router) {
			r.Get("/", budgetHandler.List)
			r.Post("/", budgetHandler.Create)
			r.Get("/analytics", budgetHandler.Analytics)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", budgetHandler.Get)
				r.Patch("/", budgetHandler.Update)
				r.Delete("/", budgetHandler.Delete)
			})
		})

		r.Route("/api/analytics", func(r chi.Router) {
			r.Get("/summary", analyticsHandler.Summary)
			r.Get("/category-breakdown", analyticsHandler.CategoryBreakdown)
			r.Get("/monthly-comparison", analyticsHandler.MonthlyComparison)
			r.Get("/budget-performance", analyticsHandler.BudgetPerformance)
			r.Get("/top-expenses", analyticsHandler.TopExpenses)
			r.Get("/daily-trend", analyticsHandler.DailyTrend)
			r.Get("/budget-utilization", analyticsHandler.BudgetUtilization)
		})

		r.Get("/api/categories", categoryHandler.List)
		r.Post("/api/upload", fileHandler.Upload)
	})

	return r
}
