package main

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sharmarakshya7/financial-rating-platform/config"
	"github.com/sharmarakshya7/financial-rating-platform/models"
	"github.com/sharmarakshya7/financial-rating-platform/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var datasetMimeTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"text/plain":               true,
	"application/octet-stream": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// validateUpload checks what the handler can see before storing anything: presence,
// extension and size. Unexpected content types are only logged.
func validateUpload(logger *logrus.Logger, header *multipart.FileHeader) (models.FileType, error) {
	if header == nil || header.Filename == "" {
		return "", utils.NewValidationError(utils.ErrInvalidUpload, "file is required")
	}
	if header.Size <= 0 {
		return "", utils.NewValidationError(utils.ErrInvalidUpload, "file is empty")
	}
	if max := config.MaxUploadSizeBytes(); header.Size > max {
		return "", utils.NewValidationError(utils.ErrInvalidUpload, fmt.Sprintf("file exceeds the %d byte limit", max))
	}
	fileType, err := models.ParseFileType(filepath.Ext(header.Filename))
	if err != nil {
		return "", utils.NewValidationError(utils.ErrInvalidUpload, "only .csv, .xlsx and .xls files are accepted")
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && !datasetMimeTypes[strings.ToLower(ct)] {
		logger.WithFields(logrus.Fields{
			"field":        "validateUpload",
			"file_name":    header.Filename,
			"content_type": ct,
		}).Warn("unexpected content type for dataset upload")
	}
	return fileType, nil
}

func uploadDatasetHandler(files utils.FileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "datasets.upload")
		defer span.End()
		logger := config.GetLogger()

		userId, _ := utils.GetUserIdFromContext(ctx)
		header, err := c.FormFile("file")
		if err != nil {
			respondError(c, utils.NewValidationError(utils.ErrInvalidUpload, "file is required"))
			return
		}
		fileType, err := validateUpload(logger, header)
		if err != nil {
			respondError(c, err)
			return
		}
		span.SetAttributes(
			attribute.String("dataset.file_name", header.Filename),
			attribute.Int64("dataset.file_size", header.Size),
		)

		dataset, err := storeDataset(ctx, files, userId, strings.TrimSpace(c.PostForm("name")), header, fileType)
		if err != nil {
			span.RecordError(err)
			config.LogError(logger, "uploads.go", "uploadDatasetHandler", "store dataset", header.Filename, err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, dataset)
	}
}

// storeDataset writes the file under the user's prefix, then records the PENDING
// dataset. The file is removed again if the dataset cannot be created.
func storeDataset(ctx context.Context, files utils.FileStore, userId int, name string, header *multipart.FileHeader, fileType models.FileType) (*models.Dataset, error) {
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	key := fmt.Sprintf("%d/%s", userId, utils.StoredFileName(filepath.Base(header.Filename)))
	path, size, err := files.Save(ctx, key, src)
	if err != nil {
		return nil, err
	}

	dataset, err := models.CreateDataset(ctx, &models.NewDataset{
		Name:     name,
		FileName: header.Filename,
		FileType: fileType,
		FileSize: size,
		FilePath: path,
	})
	if err != nil {
		if derr := files.Delete(context.WithoutCancel(ctx), path); derr != nil {
			config.LogError(config.GetLogger(), "uploads.go", "storeDataset", "remove orphaned file", path, derr)
		}
		return nil, err
	}
	return dataset, nil
}
