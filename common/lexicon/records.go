package lexicon

import (
	"encoding/json"

	"github.com/atmopics/share/common/blob"
	"github.com/atmopics/share/common/layout"
)

// Content is one decoded record of a known collection: *CodeRecord,
// *ImageRecord, *MarkdownRecord or *VideoRecord.
type Content interface {
	Kind() Kind
	Collection() string
	// Fields exposes the raw field map for blob extraction
	Fields() map[string]json.RawMessage
	sealed()
}

type base struct {
	fields map[string]json.RawMessage
}

func (b base) Fields() map[string]json.RawMessage { return b.fields }
func (base) sealed()                              {}

// CodeRecord is a pics.atmo.code record
type CodeRecord struct {
	base
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Language  string `json:"language,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func (*CodeRecord) Kind() Kind         { return KindCode }
func (*CodeRecord) Collection() string { return CollectionCode }

// MarkdownRecord is a pics.atmo.markdown record
type MarkdownRecord struct {
	base
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func (*MarkdownRecord) Kind() Kind         { return KindMarkdown }
func (*MarkdownRecord) Collection() string { return CollectionMarkdown }

// ImageRecord is a pics.atmo.image record
type ImageRecord struct {
	base
	Title       string              `json:"title,omitempty"`
	Alt         string              `json:"alt,omitempty"`
	Description string              `json:"description,omitempty"`
	AspectRatio *layout.AspectRatio `json:"aspectRatio,omitempty"`
	CreatedAt   string              `json:"createdAt,omitempty"`
}

func (*ImageRecord) Kind() Kind         { return KindImage }
func (*ImageRecord) Collection() string { return CollectionImage }

// Image extracts the image blob
func (r *ImageRecord) Image() (blob.Ref, error) {
	return blob.Extract(r.fields, "image", blob.TypeBlob)
}

// VideoRecord is a pics.atmo.video record
type VideoRecord struct {
	base
	Title       string              `json:"title,omitempty"`
	Alt         string              `json:"alt,omitempty"`
	Description string              `json:"description,omitempty"`
	AspectRatio *layout.AspectRatio `json:"aspectRatio,omitempty"`
	CreatedAt   string              `json:"createdAt,omitempty"`
}

func (*VideoRecord) Kind() Kind         { return KindVideo }
func (*VideoRecord) Collection() string { return CollectionVideo }

// Video extracts the video blob
func (r *VideoRecord) Video() (blob.Ref, error) {
	return blob.Extract(r.fields, "video", blob.TypeBlob)
}

// Thumbnail extracts the first-frame still generated at upload time
func (r *VideoRecord) Thumbnail() (blob.Ref, error) {
	return blob.Extract(r.fields, "thumbnail", blob.TypeBlob)
}
