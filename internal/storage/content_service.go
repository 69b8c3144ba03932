package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
)

// ContentService reads uploads from an embedded simple-content service and
// stores preflight outputs as derived content of the upload
type ContentService struct {
	service simplecontent.Service
}

// NewContentService wraps svc
func NewContentService(svc simplecontent.Service) *ContentService {
	return &ContentService{service: svc}
}

func parseContentID(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid content ID %q: %w", key, err)
	}
	return id, nil
}

// GetReaderByContentID streams the uploaded bytes
func (s *ContentService) GetReaderByContentID(ctx context.Context, contentID string) (io.ReadCloser, error) {
	id, err := parseContentID(contentID)
	if err != nil {
		return nil, err
	}
	rc, err := s.service.DownloadContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	return rc, nil
}

// GetReader implements Reader; key is a content ID
func (s *ContentService) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.GetReaderByContentID(ctx, key)
}

// Exists reports false for any lookup error
func (s *ContentService) Exists(ctx context.Context, key string) (bool, error) {
	id, err := parseContentID(key)
	if err != nil {
		return false, err
	}
	_, err = s.service.GetContent(ctx, id)
	return err == nil, nil
}

// GetMetadata returns the uploaded size and declared MIME type
func (s *ContentService) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	id, err := parseContentID(key)
	if err != nil {
		return nil, err
	}
	details, err := s.service.GetContentDetails(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("content details %s: %w", id, err)
	}
	return &Metadata{Size: details.FileSize, ContentType: details.MimeType}, nil
}

// DerivedVariants lists the variants stored under contentID, e.g.
// "preflight_thumbnail_v1". An empty derivedType lists every type.
func (s *ContentService) DerivedVariants(ctx context.Context, contentID, derivedType string) ([]string, error) {
	id, err := parseContentID(contentID)
	if err != nil {
		return nil, err
	}
	derived, err := s.service.ListDerivedContent(ctx, simplecontent.WithParentID(id))
	if err != nil {
		return nil, fmt.Errorf("list derived %s: %w", id, err)
	}

	variants := make([]string, 0, len(derived))
	for _, d := range derived {
		if derivedType == "" || d.DerivationType == derivedType {
			variants = append(variants, d.Variant)
		}
	}
	return variants, nil
}

// HasDerived reports whether derivedType was already stored at derivedVersion
func (s *ContentService) HasDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int) (bool, error) {
	variants, err := s.DerivedVariants(ctx, contentID, derivedType)
	if err != nil {
		return false, err
	}
	want := Variant(derivedType, derivedVersion)
	for _, v := range variants {
		if v == want {
			return true, nil
		}
	}
	return false, nil
}

// PutDerived uploads r as a derived output and returns the derived content ID
func (s *ContentService) PutDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int, r io.Reader, meta map[string]string) (string, error) {
	parentID, err := parseContentID(contentID)
	if err != nil {
		return "", err
	}

	variant := Variant(derivedType, derivedVersion)
	fileName := meta["file_name"]
	if fileName == "" {
		fileName = variant + ".bin"
	}

	derived, err := s.service.UploadDerivedContent(ctx, simplecontent.UploadDerivedContentRequest{
		ParentID:       parentID,
		DerivationType: derivedType,
		Variant:        variant,
		Reader:         r,
		FileName:       fileName,
		Tags:           []string{derivedType, variant, "preflight"},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s for %s: %w", variant, parentID, err)
	}
	return derived.ID.String(), nil
}
