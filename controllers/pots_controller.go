package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/phillip/giftpots-go/contributions"
	"github.com/phillip/giftpots-go/utils"
)

// ---------------- LIST (public) ----------------
func ListPots(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		pots, err := svc.ListActivePots(ctx)
		if err != nil {
			respondError(c, err)
			return
		}

		etag := utils.GenerateETag(pots)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, pots)
	}
}

// ---------------- GET (public) ----------------
func GetPot(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		pot, err := svc.GetPotBySlug(ctx, c.Param("slug"))
		if err != nil {
			respondError(c, err)
			return
		}

		etag := utils.GenerateETag(pot)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, pot)
	}
}

// ---------------- CONTRIBUTORS (public) ----------------
func ListPotContributors(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		list, err := svc.ListContributors(ctx, c.Param("slug"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// ---------------- ADMIN LIST ----------------
func AdminListPots(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		pots, err := svc.AdminListPots(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, pots)
	}
}

// uploadImage stores the optional multipart file under field. It returns ""
// when the request carries no such file.
func uploadImage(c *gin.Context, ctx context.Context, media utils.ImageStore, field string) (string, bool) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return "", true
	}
	if media == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image uploads are not configured"})
		return "", false
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
		return "", false
	}
	defer file.Close()

	url, err := media.Upload(ctx, file)
	if err != nil {
		log.WithError(err).WithField("file", fileHeader.Filename).Error("image upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed", "file": fileHeader.Filename})
		return "", false
	}
	return url, true
}

func deleteImage(ctx context.Context, media utils.ImageStore, url string) {
	if media == nil || url == "" {
		return
	}
	if err := media.Delete(ctx, url); err != nil {
		log.WithError(err).WithField("url", url).Warn("failed to delete image")
	}
}

// ---------------- CREATE ----------------
func CreatePot(svc *contributions.Service, media utils.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		// --- Bind JSON or form fields ---
		var input struct {
			Title         string `json:"title" form:"title" binding:"required"`
			Slug          string `json:"slug" form:"slug"`
			StoryText     string `json:"story_text" form:"story_text"`
			CoverImageURL string `json:"cover_image_url" form:"cover_image_url"`
			GoalAmount    *int64 `json:"goal_amount" form:"goal_amount"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		// --- Optional cover upload ---
		url, ok := uploadImage(c, ctx, media, "cover_image")
		if !ok {
			return
		}
		if url != "" {
			input.CoverImageURL = url
		}

		pot, err := svc.CreatePot(ctx, contributions.PotInput{
			Title:         input.Title,
			Slug:          input.Slug,
			StoryText:     input.StoryText,
			CoverImageURL: input.CoverImageURL,
			GoalAmount:    input.GoalAmount,
		})
		if err != nil {
			deleteImage(ctx, media, url)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, pot)
	}
}

// ---------------- UPDATE ----------------
func UpdatePot(svc *contributions.Service, media utils.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Title         *string `json:"title" form:"title"`
			StoryText     *string `json:"story_text" form:"story_text"`
			CoverImageURL *string `json:"cover_image_url" form:"cover_image_url"`
			GoalAmount    *int64  `json:"goal_amount" form:"goal_amount"`
			IsActive      *bool   `json:"is_active" form:"is_active"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		url, ok := uploadImage(c, ctx, media, "cover_image")
		if !ok {
			return
		}
		var oldCover string
		if url != "" {
			input.CoverImageURL = &url
			if pots, err := svc.AdminListPots(ctx); err == nil {
				for _, p := range pots {
					if p.ID == c.Param("id") {
						oldCover = p.CoverImageURL
					}
				}
			}
		}

		pot, err := svc.UpdatePot(ctx, c.Param("id"), contributions.PotPatch{
			Title:         input.Title,
			StoryText:     input.StoryText,
			CoverImageURL: input.CoverImageURL,
			GoalAmount:    input.GoalAmount,
			IsActive:      input.IsActive,
		})
		if err != nil {
			deleteImage(ctx, media, url)
			respondError(c, err)
			return
		}
		deleteImage(ctx, media, oldCover)
		c.JSON(http.StatusOK, pot)
	}
}

// ---------------- ARCHIVE ----------------
func ArchivePot(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		pot, err := svc.ArchivePot(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "pot archived", "pot": pot})
	}
}

// ---------------- ITEMS ----------------
func AddPotItem(svc *contributions.Service, media utils.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Title       string `json:"title" form:"title" binding:"required"`
			Description string `json:"description" form:"description"`
			ImageURL    string `json:"image_url" form:"image_url"`
			SortOrder   int    `json:"sort_order" form:"sort_order"`
		}
		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		url, ok := uploadImage(c, ctx, media, "image")
		if !ok {
			return
		}
		if url != "" {
			input.ImageURL = url
		}

		item, err := svc.AddPotItem(ctx, c.Param("id"), contributions.PotItemInput{
			Title:       input.Title,
			Description: input.Description,
			ImageURL:    input.ImageURL,
			SortOrder:   input.SortOrder,
		})
		if err != nil {
			deleteImage(ctx, media, url)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func UpdatePotItem(svc *contributions.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input contributions.PotItemPatch
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		item, err := svc.UpdatePotItem(ctx, c.Param("id"), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func DeletePotItem(svc *contributions.Service, media utils.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()

		item, err := svc.DeletePotItem(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		deleteImage(ctx, media, item.ImageURL)

		c.JSON(http.StatusOK, gin.H{"message": "pot item deleted", "id": item.ID})
	}
}
