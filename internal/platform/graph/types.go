package graph

import (
	"fmt"
	"time"
)

// DocxMimeType is the only content type the sync tracks.
const DocxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// DriveItem is the subset of a Graph driveItem the service reads.
type DriveItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CTag        string `json:"cTag"`
	DownloadURL string `json:"@microsoft.graph.downloadUrl"`
	File        *struct {
		MimeType string `json:"mimeType"`
	} `json:"file,omitempty"`
	Folder *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
	Root    *struct{} `json:"root,omitempty"`
	Deleted *struct {
		State string `json:"state"`
	} `json:"deleted,omitempty"`
}

func (it DriveItem) MimeType() string {
	if it.File == nil {
		return ""
	}
	return it.File.MimeType
}

// DeltaEntry is one item of a delta result.
type DeltaEntry struct {
	ID          string
	Name        string
	CTag        string
	Deleted     bool
	IsFile      bool
	MimeType    string
	DownloadURL string
}

// IsTrackedDocument reports whether the entry is a live Word document.
func (e DeltaEntry) IsTrackedDocument() bool {
	return !e.Deleted && e.IsFile && e.MimeType == DocxMimeType
}

func entryFromItem(it DriveItem) DeltaEntry {
	return DeltaEntry{
		ID:          it.ID,
		Name:        it.Name,
		CTag:        it.CTag,
		Deleted:     it.Deleted != nil,
		IsFile:      it.File != nil,
		MimeType:    it.MimeType(),
		DownloadURL: it.DownloadURL,
	}
}

// DeltaPage is the full result of one delta query, all pages followed.
// NextCursor is the deltaLink to resume from next time.
type DeltaPage struct {
	Entries    []DeltaEntry
	NextCursor string
}

type Subscription struct {
	ID                 string    `json:"id,omitempty"`
	Resource           string    `json:"resource,omitempty"`
	ChangeType         string    `json:"changeType,omitempty"`
	NotificationURL    string    `json:"notificationUrl,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState,omitempty"`
}

type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	WebURL      string `json:"webUrl"`
}

// Title prefers the display name.
func (s Site) Title() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

type Drive struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveType string `json:"driveType"`
	WebURL    string `json:"webUrl"`
}

// Error is a non-2xx Graph response.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph http %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph http %d: %s", e.StatusCode, e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}
