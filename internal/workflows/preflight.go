package workflows

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/print-preflight/internal/convert"
	"github.com/tendant/print-preflight/internal/dedupe"
	"github.com/tendant/print-preflight/internal/engine"
	"github.com/tendant/print-preflight/internal/policy"
	"github.com/tendant/print-preflight/internal/storage"
	"github.com/tendant/print-preflight/internal/thumbnail"
	"github.com/tendant/print-preflight/pkg/preflight"
)

// ContentReader interface for reading content
type ContentReader interface {
	GetReaderByContentID(ctx context.Context, contentID string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// DerivedWriter interface for writing derived content
type DerivedWriter interface {
	HasDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int) (bool, error)
	PutDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int, r io.Reader, meta map[string]string) (string, error)
}

// Ledger counts how often the same bytes have been preflighted
type Ledger interface {
	Record(ctx context.Context, contentHash, contentID, tier string) (int, error)
}

// metadataSource is implemented by readers that know the declared type
type metadataSource interface {
	GetMetadata(ctx context.Context, key string) (*storage.Metadata, error)
}

// PreflightWorkflow downloads stored content, preflights it and uploads the
// thumbnail and rendered raster as derived content
type PreflightWorkflow struct {
	contentReader ContentReader
	derivedWriter DerivedWriter
	engine        *engine.Engine
	resolver      *policy.Resolver

	ledger      Ledger
	defaultTier string
	workDir     string
}

// NewPreflightWorkflow creates a new preflight workflow
func NewPreflightWorkflow(contentReader ContentReader, derivedWriter DerivedWriter, eng *engine.Engine, resolver *policy.Resolver) *PreflightWorkflow {
	return &PreflightWorkflow{
		contentReader: contentReader,
		derivedWriter: derivedWriter,
		engine:        eng,
		resolver:      resolver,
		defaultTier:   policy.TierFree,
		workDir:       filepath.Join(os.TempDir(), "preflight"),
	}
}

// WithLedger records every run in the dedupe ledger
func (w *PreflightWorkflow) WithLedger(l Ledger) *PreflightWorkflow {
	w.ledger = l
	return w
}

// WithDefaultTier sets the tier used when a request names none
func (w *PreflightWorkflow) WithDefaultTier(tier string) *PreflightWorkflow {
	w.defaultTier = tier
	return w
}

// WithWorkDir sets where downloaded sources are staged
func (w *PreflightWorkflow) WithWorkDir(dir string) *PreflightWorkflow {
	w.workDir = dir
	return w
}

// Name returns the workflow name
func (w *PreflightWorkflow) Name() string {
	return "PreflightWorkflow"
}

// Execute runs the preflight workflow
func (w *PreflightWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	ctx := wctx.Ctx
	req := wctx.Request
	log.Printf("[%s] Starting preflight workflow for content_id=%s", wctx.RunID, req.ContentID)

	// Step 1: Validate request
	thumbVersion, rasterVersion, err := w.validateRequest(&req)
	if err != nil {
		log.Printf("[%s] Validation failed: %v", wctx.RunID, err)
		return failed(err), err
	}

	// Step 2: Check source content exists
	exists, err := w.contentReader.Exists(ctx, req.ContentID)
	if err != nil {
		log.Printf("[%s] Failed to check content existence: %v", wctx.RunID, err)
		err = fmt.Errorf("%w: content check: %w", ErrStepFailed, err)
		return failed(err), err
	}
	if !exists {
		log.Printf("[%s] Source content not found: %s", wctx.RunID, req.ContentID)
		err = fmt.Errorf("%w: %s", ErrContentNotFound, req.ContentID)
		return failed(err), err
	}

	declared := req.DeclaredMIME
	fileName := req.ObjectKey
	if src, ok := w.contentReader.(metadataSource); ok {
		if meta, err := src.GetMetadata(ctx, req.ContentID); err != nil {
			log.Printf("[%s] Content metadata unavailable: %v", wctx.RunID, err)
		} else {
			if declared == "" {
				declared = meta.ContentType
			}
			if fileName == "" {
				fileName = meta.FileName
			}
		}
	}
	if declared == "" {
		declared = req.Metadata["mime"]
	}

	// Step 3: Stage source content locally
	if err := os.MkdirAll(w.workDir, 0755); err != nil {
		err = fmt.Errorf("%w: work dir: %w", ErrStepFailed, err)
		return failed(err), err
	}
	stageDir, err := os.MkdirTemp(w.workDir, "src-")
	if err != nil {
		err = fmt.Errorf("%w: stage dir: %w", ErrStepFailed, err)
		return failed(err), err
	}
	defer os.RemoveAll(stageDir)

	srcPath := filepath.Join(stageDir, stagedName(fileName))
	size, hash, err := w.download(ctx, req.ContentID, srcPath)
	if err != nil {
		log.Printf("[%s] Failed to download source content: %v", wctx.RunID, err)
		err = fmt.Errorf("%w: download: %w", ErrStepFailed, err)
		return failed(err), err
	}
	log.Printf("[%s] Source content downloaded: %d bytes, hash=%s", wctx.RunID, size, hash)

	tier := req.Tier
	if tier == "" {
		tier = w.defaultTier
	}
	p := w.resolver.Resolve(tier)

	seen := 0
	if w.ledger != nil {
		if seen, err = w.ledger.Record(ctx, hash, req.ContentID, p.Tier); err != nil {
			log.Printf("[%s] Failed to record dedupe: %v", wctx.RunID, err)
		}
	}

	// Step 4: Skip the thumbnail when this version was already produced
	hasThumb, err := w.derivedWriter.HasDerived(ctx, req.ContentID, preflight.DerivedTypeThumbnail, thumbVersion)
	if err != nil {
		// Continue anyway - don't fail on check error
		log.Printf("[%s] Failed to check derived thumbnail: %v", wctx.RunID, err)
	}

	// Step 5: Preflight
	out, err := w.engine.Run(ctx, engine.Request{
		RunID:        wctx.RunID,
		Path:         srcPath,
		DeclaredMIME: declared,
		Size:         size,
		Policy:       p,
		Thumbnail:    !hasThumb,
	})
	switch {
	case errors.Is(err, convert.ErrConversionFailed):
		log.Printf("[%s] File could not be rendered: %v", wctx.RunID, err)
		err = fmt.Errorf("%w: %w", ErrUnrenderable, err)
		res := failed(err)
		res.DedupeSeenCount = seen
		return res, err
	case errors.Is(err, thumbnail.ErrThumbnailFailed):
		log.Printf("[%s] Continuing without thumbnail: %v", wctx.RunID, err)
	case err != nil:
		log.Printf("[%s] Preflight failed: %v", wctx.RunID, err)
		err = fmt.Errorf("%w: preflight: %w", ErrStepFailed, err)
		return failed(err), err
	}
	defer out.Cleanup()

	result := out.Result
	log.Printf("[%s] Preflight verdict: %s", wctx.RunID, result.Overall)

	// Step 6: Upload derived content
	derived := map[string]string{}
	if result.ThumbnailPath != "" {
		id, err := w.upload(ctx, req.ContentID, preflight.DerivedTypeThumbnail, thumbVersion, result.ThumbnailPath, map[string]string{
			"file_name":   fmt.Sprintf("thumbnail_v%d.jpg", thumbVersion),
			"mime_type":   "image/jpeg",
			"placeholder": fmt.Sprintf("%t", out.Placeholder),
		})
		if err != nil {
			log.Printf("[%s] Failed to write derived thumbnail: %v", wctx.RunID, err)
			err = fmt.Errorf("%w: derived write: %w", ErrStepFailed, err)
			return failed(err), err
		}
		derived[preflight.DerivedTypeThumbnail] = id
		log.Printf("[%s] Derived thumbnail written: %s", wctx.RunID, id)
	}

	if result.ConvertedPath != "" {
		has, err := w.derivedWriter.HasDerived(ctx, req.ContentID, preflight.DerivedTypeRaster, rasterVersion)
		if err != nil {
			log.Printf("[%s] Failed to check derived raster: %v", wctx.RunID, err)
		}
		if !has {
			id, err := w.upload(ctx, req.ContentID, preflight.DerivedTypeRaster, rasterVersion, result.ConvertedPath, map[string]string{
				"file_name": fmt.Sprintf("raster_v%d.png", rasterVersion),
				"mime_type": "image/png",
				"strategy":  out.Strategy,
			})
			if err != nil {
				log.Printf("[%s] Failed to write derived raster: %v", wctx.RunID, err)
				err = fmt.Errorf("%w: derived write: %w", ErrStepFailed, err)
				return failed(err), err
			}
			derived[preflight.DerivedTypeRaster] = id
			log.Printf("[%s] Derived raster written: %s", wctx.RunID, id)
		}
	}

	// Local paths do not outlive the run
	result.ThumbnailPath = ""
	result.ConvertedPath = ""

	log.Printf("[%s] Preflight workflow completed successfully", wctx.RunID)
	return &WorkflowResult{
		Success:         true,
		Result:          &result,
		DerivedIDs:      derived,
		DedupeSeenCount: seen,
	}, nil
}

// validateRequest fills in default derived versions and checks the rest
func (w *PreflightWorkflow) validateRequest(req *preflight.ProcessRequest) (thumb, raster int, err error) {
	if req.ContentID == "" {
		return 0, 0, fmt.Errorf("%w: content_id is required", ErrInvalidRequest)
	}

	thumb, raster = 1, 1
	if v, ok := req.Versions[preflight.DerivedTypeThumbnail]; ok {
		thumb = v
	}
	if v, ok := req.Versions[preflight.DerivedTypeRaster]; ok {
		raster = v
	}
	if thumb < 1 {
		return 0, 0, fmt.Errorf("%w: invalid thumbnail version: %d", ErrInvalidRequest, thumb)
	}
	if raster < 1 {
		return 0, 0, fmt.Errorf("%w: invalid raster version: %d", ErrInvalidRequest, raster)
	}
	return thumb, raster, nil
}

// download copies the content to path and returns its size and ledger key
func (w *PreflightWorkflow) download(ctx context.Context, contentID, path string) (int64, string, error) {
	reader, err := w.contentReader.GetReaderByContentID(ctx, contentID)
	if err != nil {
		return 0, "", err
	}
	defer reader.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, "", err
	}

	hasher := dedupe.NewHasher()
	n, err := io.Copy(io.MultiWriter(f, hasher), reader)
	if err != nil {
		f.Close()
		return 0, "", err
	}
	if err := f.Close(); err != nil {
		return 0, "", err
	}
	return n, hasher.Key(), nil
}

func (w *PreflightWorkflow) upload(ctx context.Context, contentID, derivedType string, version int, path string, meta map[string]string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return w.derivedWriter.PutDerived(ctx, contentID, derivedType, version, f, meta)
}

// stagedName keeps the original extension, which only labels placeholders;
// the format itself is always sniffed
func stagedName(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return "source"
	}
	return "source" + ext
}
