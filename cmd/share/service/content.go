package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/atmopics/share/cmd/share/models"
	"github.com/atmopics/share/common/blob"
	"github.com/atmopics/share/common/identity"
	"github.com/atmopics/share/common/lexicon"
	"github.com/atmopics/share/common/logger"
	"github.com/atmopics/share/common/repo"
	"github.com/atmopics/share/common/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// IdentityDirectory resolves public identifiers to repository hosts
type IdentityDirectory interface {
	ResolveDID(ctx context.Context, raw string) (string, error)
	Locate(ctx context.Context, did string) (*identity.Location, error)
	Purge(ctx context.Context, did string) error
}

// RecordGetter fetches one record from a repository host
type RecordGetter interface {
	GetRecord(ctx context.Context, loc *identity.Location, addr repo.Address) (*repo.Record, error)
}

// ContentService resolves share addresses to typed records and delivery URLs
type ContentService struct {
	identity  IdentityDirectory
	records   RecordGetter
	lexicons  *lexicon.Registry
	urls      *blob.Synthesizer
	telemetry *telemetry.Telemetry
	publicURL string
	log       *logger.Logger
}

// ContentServiceOpts contains options for creating a ContentService
type ContentServiceOpts struct {
	Identity  IdentityDirectory
	Records   RecordGetter
	Lexicons  *lexicon.Registry
	URLs      *blob.Synthesizer
	Telemetry *telemetry.Telemetry
	PublicURL string
	Logger    *logger.Logger
}

// NewContentService creates a content service with options pattern
func NewContentService(opts *ContentServiceOpts) *ContentService {
	return &ContentService{
		identity:  opts.Identity,
		records:   opts.Records,
		lexicons:  opts.Lexicons,
		urls:      opts.URLs,
		telemetry: opts.Telemetry,
		publicURL: opts.PublicURL,
		log:       opts.Logger,
	}
}

// Resolved is a fetched and decoded record with where it came from
type Resolved struct {
	Location identity.Location
	Address  repo.Address
	Record   *repo.Record
	Content  lexicon.Content
}

// track wraps one stage in a span and tags its error with the stage
func (s *ContentService) track(ctx context.Context, stage Stage, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	if s.telemetry == nil {
		return stageErr(stage, fn(ctx))
	}
	ctx, done := s.telemetry.TrackStage(ctx, string(stage), attrs...)
	err := fn(ctx)
	done(err)
	return stageErr(stage, err)
}

// ResolveContent runs identifier → DID → host → record → typed content.
// Stages run in order and the first failure stops the pipeline.
func (s *ContentService) ResolveContent(ctx context.Context, identifier, collection, rkey string) (*Resolved, error) {
	attrs := []attribute.KeyValue{
		telemetry.AttrCollection.String(collection),
		telemetry.AttrRKey.String(rkey),
	}

	var id identity.Identifier
	if err := s.track(ctx, StageClassify, attrs, func(context.Context) error {
		var err error
		id, err = identity.Classify(identifier)
		return err
	}); err != nil {
		return nil, err
	}

	did := id.Value
	if id.Kind == identity.KindHandle {
		if err := s.track(ctx, StageResolveHandle, attrs, func(ctx context.Context) error {
			var err error
			did, err = s.identity.ResolveDID(ctx, id.Value)
			return err
		}); err != nil {
			return nil, err
		}
	}

	attrs = append(attrs, telemetry.AttrDID.String(did))
	log := s.log.WithContext(ctx).WithDID(did)

	var loc *identity.Location
	if err := s.track(ctx, StageLocate, attrs, func(ctx context.Context) error {
		var err error
		loc, err = s.identity.Locate(ctx, did)
		return err
	}); err != nil {
		return nil, err
	}

	addr := repo.Address{DID: did, Collection: collection, RKey: rkey}
	var rec *repo.Record
	if err := s.track(ctx, StageFetchRecord, attrs, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetRecord(ctx, loc, addr)
		return err
	}); err != nil {
		if errors.Is(err, repo.ErrHostUnreachable) {
			// the account may have moved; look the host up again next time
			if perr := s.identity.Purge(context.WithoutCancel(ctx), did); perr != nil {
				log.Warn("failed to drop cached location", "error", perr)
			}
		}
		return nil, err
	}

	var content lexicon.Content
	if err := s.track(ctx, StageDecode, attrs, func(context.Context) error {
		var err error
		content, err = s.lexicons.Decode(collection, rec)
		return err
	}); err != nil {
		return nil, err
	}

	log.Debug("content resolved", "uri", addr.URI(), "pds", loc.PDS)

	return &Resolved{Location: *loc, Address: addr, Record: rec, Content: content}, nil
}

func (s *ContentService) page(r *Resolved) (models.Page, error) {
	shareURL, err := lexicon.ShareLink(s.publicURL, r.Address.DID, r.Address.Collection, r.Address.RKey)
	if err != nil {
		return models.Page{}, err
	}
	uri := r.Record.URI
	if uri == "" {
		uri = r.Address.URI()
	}
	return models.Page{
		URI:        uri,
		CID:        r.Record.CID,
		DID:        r.Address.DID,
		Handle:     r.Location.Handle,
		Record:     r.Record.Value,
		ShareURL:   shareURL,
		OGImageURL: shareURL + "/og.png",
	}, nil
}

func (s *ContentService) resolveAs(ctx context.Context, identifier, rkey, collection string) (*Resolved, models.Page, error) {
	r, err := s.ResolveContent(ctx, identifier, collection, rkey)
	if err != nil {
		return nil, models.Page{}, err
	}
	page, err := s.page(r)
	if err != nil {
		return nil, models.Page{}, stageErr(StageSynthesizeURL, err)
	}
	return r, page, nil
}

// blobURL extracts a blob and builds its delivery URL
func (s *ContentService) blobURL(r *Resolved, extract func() (blob.Ref, error), v blob.Variant) (blob.Ref, string, error) {
	ref, err := extract()
	if err != nil {
		return blob.Ref{}, "", stageErr(StageExtractBlob, err)
	}
	u, err := s.urls.URL(r.Address.DID, ref, v)
	if err != nil {
		return blob.Ref{}, "", stageErr(StageSynthesizeURL, err)
	}
	return ref, u, nil
}

// ImageView resolves an image post with a direct URL to the original bytes
func (s *ContentService) ImageView(ctx context.Context, identifier, rkey string) (*models.ImagePage, error) {
	r, page, err := s.resolveAs(ctx, identifier, rkey, lexicon.CollectionImage)
	if err != nil {
		return nil, err
	}
	img := r.Content.(*lexicon.ImageRecord)

	ref, u, err := s.blobURL(r, img.Image, blob.Raw(r.Location.PDS))
	if err != nil {
		return nil, err
	}

	return &models.ImagePage{Page: page, Blob: ref, ImageURL: u}, nil
}

// VideoView resolves a video post. A missing or broken thumbnail leaves the
// page without one.
func (s *ContentService) VideoView(ctx context.Context, identifier, rkey string) (*models.VideoPage, error) {
	r, page, err := s.resolveAs(ctx, identifier, rkey, lexicon.CollectionVideo)
	if err != nil {
		return nil, err
	}
	video := r.Content.(*lexicon.VideoRecord)

	ref, u, err := s.blobURL(r, video.Video, blob.Raw(r.Location.PDS))
	if err != nil {
		return nil, err
	}
	view := &models.VideoPage{Page: page, VideoBlob: ref, VideoURL: u}

	thumb, thumbURL, err := s.blobURL(r, video.Thumbnail, blob.CDNPreset(blob.PresetThumbnail, blob.FormatJPEG))
	switch {
	case err == nil:
		view.ThumbnailBlob = &thumb
		view.ThumbnailURL = thumbURL
	case errors.Is(err, blob.ErrBlobAbsent):
	default:
		s.log.WithContext(ctx).Warn("video thumbnail unusable",
			"uri", page.URI, "stage", StageOf(err), "error", err)
	}

	return view, nil
}

// CodeView resolves a code snippet. Empty content is not found.
func (s *ContentService) CodeView(ctx context.Context, identifier, rkey string) (*models.CodePage, error) {
	r, page, err := s.resolveAs(ctx, identifier, rkey, lexicon.CollectionCode)
	if err != nil {
		return nil, err
	}
	code := r.Content.(*lexicon.CodeRecord)
	if code.Content == "" {
		return nil, stageErr(StageDecode, fmt.Errorf("%w: %s", ErrContentEmpty, page.URI))
	}

	return &models.CodePage{Page: page, Title: code.Title, Language: code.Language, Content: code.Content}, nil
}

// MarkdownView resolves a markdown post
func (s *ContentService) MarkdownView(ctx context.Context, identifier, rkey string) (*models.MarkdownPage, error) {
	r, page, err := s.resolveAs(ctx, identifier, rkey, lexicon.CollectionMarkdown)
	if err != nil {
		return nil, err
	}
	md := r.Content.(*lexicon.MarkdownRecord)

	return &models.MarkdownPage{Page: page, Title: md.Title, Content: md.Content}, nil
}
