package models

import (
	"fmt"
	"strings"

	"github.com/sharmarakshya7/financial-rating-platform/utils"
)

type DatasetStatus string

const (
	DatasetStatusPending    DatasetStatus = "PENDING"
	DatasetStatusProcessing DatasetStatus = "PROCESSING"
	DatasetStatusCompleted  DatasetStatus = "COMPLETED"
	DatasetStatusFailed     DatasetStatus = "FAILED"
)

func (s DatasetStatus) IsTerminal() bool {
	return s == DatasetStatusCompleted || s == DatasetStatusFailed
}

// FileType is the dataset file kind; xls and xlsx are both read as spreadsheets.
type FileType string

const (
	FileTypeCsv  FileType = "csv"
	FileTypeXlsx FileType = "xlsx"
	FileTypeXls  FileType = "xls"
)

func (t FileType) IsSpreadsheet() bool {
	return t == FileTypeXlsx || t == FileTypeXls
}

// ParseFileType takes an extension with or without the leading dot, any case.
func ParseFileType(ext string) (FileType, error) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	switch FileType(ext) {
	case FileTypeCsv, FileTypeXlsx, FileTypeXls:
		return FileType(ext), nil
	default:
		return "", fmt.Errorf("%w: %q", utils.ErrUnsupportedFileType, ext)
	}
}

// Outbox publish statuses for IngestionOutbox.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
