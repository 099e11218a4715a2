// Package model contains simple struct definitions shared across packages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadStatus describes one file's upload lifecycle. pending and error are
// the only states in which an item may still be edited or withdrawn.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusUploading UploadStatus = "uploading"
	StatusSuccess   UploadStatus = "success"
	StatusError     UploadStatus = "error"
)

// CaptureDateLayout is the wire format for date_taken, rendered in the
// local zone.
const CaptureDateLayout = "2006-01-02 15:04:05"

// SourceFile is the immutable description of a selected file.
type SourceFile struct {
	Path        string `json:"-"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// UploadItem tracks a single file from selection to its terminal upload
// outcome. AssignedDocID is set exactly when Status is success, and
// ErrorMessage exactly when Status is error.
type UploadItem struct {
	ID            string       `json:"id"`
	SourceFile    SourceFile   `json:"sourceFile"`
	Status        UploadStatus `json:"status"`
	Progress      int          `json:"progress"`
	DisplayName   string       `json:"displayName"`
	CaptureDate   *time.Time   `json:"captureDate,omitempty"`
	AssignedDocID *int         `json:"assignedDocId,omitempty"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
}

// NewUploadItem builds a pending item for a selected file. DisplayName starts
// as the original file name; captureDate may be nil when extraction found
// nothing.
func NewUploadItem(src SourceFile, captureDate *time.Time) *UploadItem {
	return &UploadItem{
		ID:          uuid.NewString(),
		SourceFile:  src,
		Status:      StatusPending,
		DisplayName: src.Name,
		CaptureDate: captureDate,
	}
}

// Editable reports whether metadata edits are currently allowed.
func (i *UploadItem) Editable() bool {
	return i.Status == StatusPending || i.Status == StatusError
}

// Removable reports whether the item may be withdrawn from its queue.
// Mid-flight uploads are opaque to the user and cannot be removed.
func (i *UploadItem) Removable() bool {
	return i.Status == StatusPending || i.Status == StatusError
}

// Terminal reports whether the item reached success or error.
func (i *UploadItem) Terminal() bool {
	return i.Status == StatusSuccess || i.Status == StatusError
}

// EffectiveName is the docname sent to the server: the trimmed display name,
// falling back to the original file name when blank.
func (i *UploadItem) EffectiveName() string {
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	return i.SourceFile.Name
}

// FormattedCaptureDate renders the capture date for the wire, or "" when no
// date is set.
func (i *UploadItem) FormattedCaptureDate() string {
	if i.CaptureDate == nil {
		return ""
	}
	return i.CaptureDate.Local().Format(CaptureDateLayout)
}
