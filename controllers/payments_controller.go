package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/config"
	"github.com/phillip/giftpots-go/contributions"
	"github.com/phillip/giftpots-go/gateway"
)

const maxWebhookBody = 1 << 20

type sessionRef struct {
	SessionID string `json:"session_id"`
}

// ---------------- ORDER ----------------
func CreateOrder(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input sessionRef
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		res, err := svc.CreateOrder(ctx, input.SessionID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ---------------- PAYMENT LINK ----------------
func CreatePaymentLink(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			SessionID    string `json:"session_id"`
			CallbackBase string `json:"callback_base_url"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		res, err := svc.CreatePaymentLink(ctx, input.SessionID, input.CallbackBase)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ---------------- WEBHOOK ----------------

// RazorpayWebhook must see the body byte for byte as the gateway signed it.
func RazorpayWebhook(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		status, err := svc.HandleWebhook(ctx, body,
			c.GetHeader(gateway.HeaderSignature),
			c.GetHeader(gateway.HeaderEventID),
		)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
	}
}

// ---------------- PAYMENT LINK CALLBACK ----------------

// PaymentLinkCallback always redirects the donor's browser to the thank-you
// page, carrying success or failure.
func PaymentLinkCallback(cfg *config.Config, svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		cb := gateway.LinkCallback{
			LinkID:      c.Query("razorpay_payment_link_id"),
			ReferenceID: c.Query("razorpay_payment_link_reference_id"),
			Status:      c.Query("razorpay_payment_link_status"),
			PaymentID:   c.Query("razorpay_payment_id"),
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		res := svc.HandleLinkCallback(ctx, c.Query("session_id"), cb, c.Query("razorpay_signature"))

		outcome := "failed"
		if res.Success {
			outcome = "success"
		}
		q := url.Values{}
		q.Set("session", res.SessionID)
		q.Set("name", res.DonorName)
		q.Set("payment", outcome)

		log.WithFields(log.Fields{
			"session_id": res.SessionID,
			"payment":    outcome,
		}).Info("payment link callback")
		c.Redirect(http.StatusSeeOther, strings.TrimRight(cfg.FrontendURL, "/")+"/thank-you?"+q.Encode())
	}
}
