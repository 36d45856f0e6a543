package models

import (
	"time"
)

// DocumentStatus represents the current state of a document in the system
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusCompleted DocumentStatus = "completed"
	StatusError     DocumentStatus = "error"
)

// Terminal reports whether no further transitions may leave this status.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Document represents one upload-to-conversion job
type Document struct {
	ID              int64          `json:"id"`
	OriginalName    string         `json:"originalName"`
	OriginalFormat  Format         `json:"originalFormat"`
	ConvertedFormat Format         `json:"convertedFormat"`
	Status          DocumentStatus `json:"status"`
	Content         string         `json:"content,omitempty"`
	EnhancedContent string         `json:"enhancedContent,omitempty"`
	DownloadURL     string         `json:"downloadUrl,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Completion carries the fields written by a successful conversion.
type Completion struct {
	DownloadURL     string
	Content         string
	EnhancedContent string
}

// DownloadFilename is the attachment name served for the converted payload.
func (d *Document) DownloadFilename() string {
	return d.OriginalName + "." + string(d.ConvertedFormat)
}
