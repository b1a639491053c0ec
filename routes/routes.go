package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	config "github.com/phillip/giftpots-go/config"
	"github.com/phillip/giftpots-go/contributions"
	controllers "github.com/phillip/giftpots-go/controllers"
	middleware "github.com/phillip/giftpots-go/middleware"
	"github.com/phillip/giftpots-go/ratelimit"
	"github.com/phillip/giftpots-go/utils"
)

type Deps struct {
	Service *contributions.Service
	// Media is nil when image uploads are not configured.
	Media utils.ImageStore
	// SessionLimiter guards session writes, PaymentLimiter the gateway calls.
	SessionLimiter ratelimit.Limiter
	PaymentLimiter ratelimit.Limiter
}

func SetupRoutes(r *gin.Engine, cfg *config.Config, deps Deps) {
	svc := deps.Service
	sessionLimit := middleware.RateLimit(orNoop(deps.SessionLimiter), controllers.RespondError)
	paymentLimit := middleware.RateLimit(orNoop(deps.PaymentLimiter), controllers.RespondError)

	r.GET("/", controllers.Root())

	api := r.Group("/api")

	// public
	api.GET("/", controllers.Root())
	api.GET("/health", controllers.Health(svc))
	api.GET("/config", controllers.PublicConfig(cfg))
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.POST("/admin/login", controllers.AdminLogin(cfg))

	pots := api.Group("/pots")
	{
		pots.GET("", controllers.ListPots(svc))
		pots.GET("/:slug", controllers.GetPot(svc))
		pots.GET("/:slug/contributors", controllers.ListPotContributors(svc))
	}

	session := api.Group("/session")
	{
		session.POST("/create-or-update", sessionLimit, controllers.CreateOrReplaceSession(svc))
		session.GET("/:id", controllers.GetSession(svc))
		session.GET("/:id/progress", controllers.GetSessionProgress(svc))
	}

	upi := api.Group("/upi")
	upi.Use(sessionLimit)
	{
		upi.POST("/session/create", controllers.CreateUpiSession(svc))
		upi.POST("/blessing/confirm", controllers.ConfirmBlessing(svc))
	}

	rzp := api.Group("/razorpay")
	{
		rzp.POST("/order/create", paymentLimit, controllers.CreateOrder(svc))
		rzp.POST("/payment-link", paymentLimit, controllers.CreatePaymentLink(svc))
		rzp.POST("/webhook", controllers.RazorpayWebhook(svc))
		rzp.GET("/payment-link/callback", controllers.PaymentLinkCallback(cfg, svc))
	}

	// protected
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	{
		admin.GET("/dashboard", controllers.Dashboard(svc))

		admin.GET("/pots", controllers.AdminListPots(svc))
		admin.POST("/pots", controllers.CreatePot(svc, deps.Media))
		admin.PUT("/pots/:id", controllers.UpdatePot(svc, deps.Media))
		admin.POST("/pots/:id/archive", controllers.ArchivePot(svc))
		admin.POST("/pots/:id/items", controllers.AddPotItem(svc, deps.Media))
		admin.PUT("/pot-items/:id", controllers.UpdatePotItem(svc))
		admin.DELETE("/pot-items/:id", controllers.DeletePotItem(svc, deps.Media))

		admin.GET("/contributions", controllers.ListContributions(svc))
		admin.GET("/contributions/export", controllers.ExportContributions(svc))
		admin.POST("/contributions/:id/status", controllers.SetContributionStatus(svc))
	}
}

func orNoop(l ratelimit.Limiter) ratelimit.Limiter {
	if l == nil {
		return ratelimit.Noop{}
	}
	return l
}
