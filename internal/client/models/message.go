package models

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// MessageType classifies a message body.
type MessageType string

const (
	MessageText  MessageType = "Text"
	MessageImage MessageType = "Image"
	MessageFile  MessageType = "File"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageSending   MessageStatus = "Sending"
	MessageSent      MessageStatus = "Sent"
	MessageDelivered MessageStatus = "Delivered"
	MessageRead      MessageStatus = "Read"
	MessageFailed    MessageStatus = "Failed"
)

// DeletedMarker replaces the content of a tombstoned message.
const DeletedMarker = "Message deleted"

func (s MessageStatus) rank() int {
	switch s {
	case MessageSending:
		return 1
	case MessageSent:
		return 2
	case MessageDelivered:
		return 3
	case MessageRead:
		return 4
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is a forward transition.
// Failed is reachable from Sending only; a Failed message moves forward again
// only through a confirmed remote status.
func (s MessageStatus) Advances(next MessageStatus) bool {
	if next == MessageFailed {
		return s == MessageSending
	}
	if s == MessageFailed {
		return next.rank() >= MessageSent.rank()
	}
	return next.rank() > s.rank()
}

// FileAttachment describes a file carried by a message.
type FileAttachment struct {
	// URL is an external URL or a local-scheme reference resolved through
	// the local file map.
	URL        string `json:"url"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	FileType   string `json:"fileType"`
	LocalPath  string `json:"localPath,omitempty"`
	IsUploaded bool   `json:"isUploaded"`
}

// SizeFormatted renders FileSize as B, KB, MB or GB with up to two decimals.
func (a FileAttachment) SizeFormatted() string {
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(a.FileSize)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", size), "0"), ".")
	return s + " " + units[i]
}

// Message is stored at messages/{chatId}/{id}.
type Message struct {
	ID       string `json:"id"`
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`

	// SenderName is copied from the sender at send time.
	SenderName string `json:"senderName"`

	// Content is the text, or a placeholder for attachments.
	Content     string          `json:"content"`
	MessageType MessageType     `json:"messageType"`
	Attachment  *FileAttachment `json:"fileAttachment,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	Status      MessageStatus   `json:"status"`

	IsEdited bool       `json:"isEdited"`
	EditedAt *time.Time `json:"editedAt,omitempty"`
	EditedBy string     `json:"editedBy,omitempty"`

	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`
}

// AttachmentPlaceholder is the content stored for attachment messages.
func AttachmentPlaceholder(fileName string) string {
	return "[File: " + fileName + "]"
}

// DisplayContent returns the tombstone marker for deleted messages and the
// content otherwise.
func (m Message) DisplayContent() string {
	if m.IsDeleted {
		return DeletedMarker
	}
	return m.Content
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		m.EditedAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		m.DeletedAt = &t
	}
	return m
}

// WithEdit returns a replacement record carrying the new content.
func (m Message) WithEdit(content, editorID string, at time.Time) Message {
	r := m.Clone()
	at = at.UTC()
	r.Content = content
	r.IsEdited = true
	r.EditedAt = &at
	r.EditedBy = editorID
	return r
}

// Tombstone returns a deleted copy of m. Identity and chat id are kept.
func (m Message) Tombstone(deleterID string, at time.Time) Message {
	r := m.Clone()
	at = at.UTC()
	r.Content = DeletedMarker
	r.Attachment = nil
	r.IsDeleted = true
	r.DeletedAt = &at
	r.DeletedBy = deleterID
	return r
}

// MergeMutable copies the fields a remote update may change into m: content,
// attachment, edit and delete metadata, and the status when it advances.
func (m *Message) MergeMutable(from Message) {
	from = from.Clone()
	m.Content = from.Content
	m.Attachment = from.Attachment
	m.IsEdited = from.IsEdited
	m.EditedAt = from.EditedAt
	m.EditedBy = from.EditedBy
	m.IsDeleted = from.IsDeleted
	m.DeletedAt = from.DeletedAt
	m.DeletedBy = from.DeletedBy
	if from.Status != "" && m.Status.Advances(from.Status) && from.Status != MessageFailed {
		m.Status = from.Status
	}
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".webp": {},
}

// IsImageFile reports whether name has an image extension.
func IsImageFile(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".zip":  "application/zip",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
}

// MimeType guesses a content type from the file extension.
func MimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := mimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// TypeForFile returns MessageImage for image files and MessageFile otherwise.
func TypeForFile(name string) MessageType {
	if IsImageFile(name) {
		return MessageImage
	}
	return MessageFile
}
