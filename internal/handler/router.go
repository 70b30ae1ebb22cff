package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/livrini/internal/middleware"
	"github.com/mmeshcher/livrini/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса LIVRINI.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	staff := custommiddleware.RequireRole(model.RoleAdmin, model.RoleFournisseur)
	adminOnly := custommiddleware.RequireRole(model.RoleAdmin)
	clientOnly := custommiddleware.RequireRole(model.RoleClient)
	supplierOnly := custommiddleware.RequireRole(model.RoleFournisseur)

	r.Get("/health", h.Health)
	r.Post("/api/payments/webhook", h.PaymentWebhook)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/resend-otp", h.ResendOTP)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
		r.Post("/login", h.Login)

		r.With(h.authMiddleware.Middleware).Get("/me", h.Me)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/api/users", func(r chi.Router) {
			r.Use(adminOnly)

			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)
		})

		r.Route("/api/commandes", func(r chi.Router) {
			r.With(clientOnly).Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)
			r.With(supplierOnly).Get("/fournisseur", h.ListSupplierOrders)
			r.Get("/{numero}", h.GetOrder)
			r.Get("/{numero}/lignes", h.ListOrderLines)
			r.Get("/{numero}/livraison", h.GetOrderDelivery)
			r.With(staff).Put("/{numero}/statut", h.UpdateOrderStatus)
		})

		r.Route("/api/livraisons", func(r chi.Router) {
			r.With(adminOnly).Get("/", h.ListDeliveries)
			r.With(adminOnly).Post("/sync", h.SyncDeliveries)
			r.Get("/{id}", h.GetDelivery)
			r.With(staff).Put("/{id}/notes", h.UpdateDeliveryNotes)
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Get("/unread-count", h.UnreadCount)
			r.Put("/read-all", h.MarkAllNotificationsRead)
			r.Put("/{id}/read", h.MarkNotificationRead)
			r.Delete("/{id}", h.DeleteNotification)
			r.Delete("/", h.DeleteAllNotifications)
			r.With(adminOnly).Post("/", h.CreateNotification)
			r.With(staff).Post("/low-stock", h.LowStockAlert)
		})

		r.Route("/api/alertes-stock", func(r chi.Router) {
			r.With(staff).Get("/", h.ListStockAlerts)
			r.With(staff).Post("/", h.CreateStockAlert)
			r.With(staff).Get("/{id}", h.GetStockAlert)
			r.With(adminOnly).Put("/{id}/resolve", h.ResolveStockAlert)
			r.With(adminOnly).Delete("/{id}", h.DeleteStockAlert)
		})

		r.Route("/api/payments", func(r chi.Router) {
			r.Post("/create-payment-intent", h.CreatePaymentIntent)
			r.Post("/confirm", h.ConfirmPayment)
			r.Get("/history", h.PaymentHistory)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusNotFound, "Route non trouvée", "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "method_not_allowed")
	})

	return r
}
