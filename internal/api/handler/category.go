package handler

import (
	"errors"
	"net/http"
	"time"

	"chathub/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

const (
	categoryCacheKey     = "categories"
	categoryCacheTTL     = 5 * time.Minute
	categoryCacheCleanup = 10 * time.Minute
)

// Cache for the category list; categories change rarely.
var categoryCache = cache.New(categoryCacheTTL, categoryCacheCleanup)

func ListCategories(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cached, found := categoryCache.Get(categoryCacheKey); found {
			c.JSON(http.StatusOK, cached)
			return
		}

		var categories []model.Category
		if err := db.Order("name").Find(&categories).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch categories"})
			return
		}

		categoryCache.Set(categoryCacheKey, categories, categoryCacheTTL)
		c.JSON(http.StatusOK, categories)
	}
}

func CreateCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name        string `json:"name" binding:"required"`
			Description string `json:"description"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		category := model.Category{Name: input.Name, Description: input.Description}
		if err := db.Create(&category).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create category"})
			return
		}

		categoryCache.Flush()
		c.JSON(http.StatusCreated, category)
	}
}

func DeleteCategory(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		var category model.Category
		if err := db.First(&category, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch category"})
			return
		}

		var count int64
		if err := db.Model(&model.Server{}).Where("category_id = ?", category.ID).Count(&count).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check category usage"})
			return
		}
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "category still has servers"})
			return
		}

		if err := db.Delete(&category).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete category"})
			return
		}

		categoryCache.Flush()
		c.JSON(http.StatusOK, gin.H{"message": "category deleted successfully"})
	}
}
