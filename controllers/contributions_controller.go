package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phillip/giftpots-go/contributions"
)

type allocationInput struct {
	PotID     string `json:"pot_id"`
	PotItemID string `json:"pot_item_id"`
	Amount    int64  `json:"amount_paise"`
}

func toAllocations(in []allocationInput) []contributions.AllocationInput {
	out := make([]contributions.AllocationInput, len(in))
	for i, a := range in {
		out[i] = contributions.AllocationInput{PotID: a.PotID, PotItemID: a.PotItemID, Amount: a.Amount}
	}
	return out
}

// ---------------- CREATE / UPDATE SESSION ----------------
func CreateOrReplaceSession(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			SessionID   string            `json:"session_id"`
			Name        string            `json:"donor_name"`
			Email       string            `json:"donor_email"`
			Phone       string            `json:"donor_phone"`
			Message     string            `json:"donor_message"`
			Allocations []allocationInput `json:"allocations"`
			CoverFees   bool              `json:"cover_fees"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		quote, err := svc.CreateOrReplaceSession(ctx, contributions.SessionRequest{
			SessionID: input.SessionID,
			Donor: contributions.Donor{
				Name:    input.Name,
				Email:   input.Email,
				Phone:   input.Phone,
				Message: input.Message,
			},
			Allocations: toAllocations(input.Allocations),
			CoverFees:   input.CoverFees,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, quote)
	}
}

// ---------------- GET SESSION ----------------
func GetSession(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		st, err := svc.GetSession(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// ---------------- SESSION PROGRESS ----------------
func GetSessionProgress(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		p, err := svc.GetSessionProgress(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// ---------------- UPI SESSION ----------------
func CreateUpiSession(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Allocations []allocationInput `json:"allocations"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		quote, err := svc.CreateUpiSession(ctx, toAllocations(input.Allocations))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, quote)
	}
}

// ---------------- UPI BLESSING ----------------
func ConfirmBlessing(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input contributions.BlessingRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		res, err := svc.ConfirmBlessing(ctx, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
