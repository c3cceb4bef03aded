package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
)

func dashboardSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := models.GetDashboardSummary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type pageQuery struct {
	Page int `form:"page"`
	Size int `form:"size"`
}

func listRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q pageQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, utils.NewValidationError(utils.ErrInvalidFilter, "page and size must be integers"))
			return
		}
		page, err := models.ListRecords(c.Request.Context(), q.Page, q.Size)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func filterRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.FilterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, utils.NewValidationError(utils.ErrInvalidFilter, "malformed filter body"))
			return
		}
		page, err := models.FilterRecords(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}
