package controllers

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/config"
	"github.com/phillip/giftpots-go/contributions"
	"github.com/phillip/giftpots-go/middleware"
)

// ---------------- LOGIN ----------------
func AdminLogin(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if cfg.AdminPassword == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "admin login is disabled"})
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(input.Username), []byte(cfg.AdminUsername)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(input.Password), []byte(cfg.AdminPassword)) == 1
		if !userOK || !passOK {
			log.WithField("ip", c.ClientIP()).Warn("failed admin login")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, exp, err := middleware.IssueToken(cfg, input.Username)
		if err != nil {
			log.WithError(err).Error("issue admin token")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp})
	}
}

// ---------------- DASHBOARD ----------------
func Dashboard(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		d, err := svc.Dashboard(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// ---------------- CONTRIBUTIONS ----------------
func ListContributions(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := svc.ListContributions(ctx, c.Query("status"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func ExportContributions(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		// Buffered so a failure halfway still yields a JSON error.
		var buf bytes.Buffer
		if err := svc.ExportPaidContributions(ctx, &buf); err != nil {
			respondError(c, err)
			return
		}

		name := fmt.Sprintf("contributions-%s.csv", time.Now().UTC().Format("2006-01-02"))
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	}
}

func SetContributionStatus(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Status string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		status, err := svc.SetContributionStatus(ctx, c.Param("id"), input.Status)
		if err != nil {
			respondError(c, err)
			return
		}

		log.WithFields(log.Fields{
			"session_id": c.Param("id"),
			"status":     status,
			"admin":      c.GetString("user_id"),
		}).Info("contribution status overridden")
		c.JSON(http.StatusOK, gin.H{"session_id": c.Param("id"), "status": status})
	}
}
