package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/apperr"
)

// requestTimeout bounds every handler's store and gateway work. The gateway
// client carries its own, shorter timeout.
const requestTimeout = 20 * time.Second

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// respondError maps the error taxonomy onto HTTP. Downstream failures are
// logged here and reported generically.
func respondError(c *gin.Context, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindUnknown {
		log.WithError(err).WithField("path", c.FullPath()).Error("unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong, please try again"})
		return
	}
	if e.Kind.Downstream() {
		logDownstream(c, e)
	}

	switch e.Kind {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": e.Message})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": e.Message})
	case apperr.KindInvalidState:
		c.JSON(http.StatusConflict, gin.H{"error": e.Message, "status": e.State})
	case apperr.KindInconsistent:
		c.JSON(http.StatusConflict, gin.H{"error": e.Message})
	case apperr.KindInvalidSignature:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	case apperr.KindRateLimited:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": e.Message})
	case apperr.KindGateway:
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable, please try again"})
	case apperr.KindStoreUnavailable:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable, please try again"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not complete your request, please try again"})
	}
}

// RespondError is respondError for middleware that rejects before a handler runs.
func RespondError(c *gin.Context, err error) {
	respondError(c, err)
}

func logDownstream(c *gin.Context, e *apperr.Error) {
	log.WithError(e).WithFields(log.Fields{
		"kind": e.Kind.String(),
		"path": c.FullPath(),
	}).Error("downstream failure")
}
