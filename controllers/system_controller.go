package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/config"
	"github.com/phillip/giftpots-go/contributions"
)

func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "giftpots", "status": "running"})
	}
}

func Health(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		if err := svc.Ping(ctx); err != nil {
			log.WithError(err).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// PublicConfig is what the checkout page needs before it can render.
func PublicConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"payment_provider": cfg.PaymentProvider,
			"upi_id":           cfg.UPIID,
			"upi_name":         cfg.UPIName,
			"razorpay_key_id":  cfg.RazorpayKeyID,
			"fee_rate":         contributions.FeeRate,
		})
	}
}
