package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
)

func datasetIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondError(c, utils.NewValidationError(utils.ErrInvalidFilter, "dataset id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func listDatasetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		datasets, err := models.GetUserDatasets(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, datasets)
	}
}

func getDatasetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := datasetIdParam(c)
		if !ok {
			return
		}
		dataset, err := models.GetDataset(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dataset)
	}
}

func deleteDatasetHandler(files utils.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := datasetIdParam(c)
		if !ok {
			return
		}
		if _, err := models.DeleteDataset(c.Request.Context(), id, files); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
