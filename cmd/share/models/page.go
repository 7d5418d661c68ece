package models

import (
	"encoding/json"

	"github.com/atmopics/share/common/blob"
)

// Page is the data every share page carries
type Page struct {
	URI        string          `json:"uri"`
	CID        string          `json:"cid,omitempty"`
	DID        string          `json:"did"`
	Handle     string          `json:"handle,omitempty"`
	Record     json.RawMessage `json:"record"`
	ShareURL   string          `json:"shareUrl"`
	OGImageURL string          `json:"ogImageUrl"`
}

// ImagePage is the page data of an image post
type ImagePage struct {
	Page
	Blob     blob.Ref `json:"blob"`
	ImageURL string   `json:"imageUrl"`
}

// VideoPage is the page data of a video post. The thumbnail is optional.
type VideoPage struct {
	Page
	VideoBlob     blob.Ref  `json:"videoBlob"`
	ThumbnailBlob *blob.Ref `json:"thumbnailBlob,omitempty"`
	VideoURL      string    `json:"videoUrl"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty"`
}

// CodePage is the page data of a code snippet
type CodePage struct {
	Page
	Title    string `json:"title"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

// MarkdownPage is the page data of a markdown post
type MarkdownPage struct {
	Page
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ShareLinkResponse answers a share link lookup
type ShareLinkResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the body of every error answer
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
