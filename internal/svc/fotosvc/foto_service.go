// Package fotosvc stores camera captures, their annotated renditions and annotation overlays.
package fotosvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/image/draw"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	"github.com/mkrupp/vidrio/internal/repo/blob"
	"github.com/mkrupp/vidrio/internal/repo/foto"
	"github.com/mkrupp/vidrio/internal/util/errutil"
)

// UploadForm is a foto upload. Images are PNGs encoded as data URLs or bare base64.
type UploadForm struct {
	Nombre      string          `json:"nombre"`
	Original    string          `json:"original"`
	Anotada     string          `json:"anotada"`
	Anotaciones json.RawMessage `json:"anotaciones"`
}

// FotoService keeps foto records in the foto repository and image bodies in blob storage.
// Image blobs are content addressed and shared between fotos; a blob is pruned
// once no foto references it. Thumbnails are cached under "<blob>_<width>".
type FotoService struct {
	fotoRepo  foto.Repository
	imageRepo blob.Repository
	cacheRepo blob.Repository
	interpol  draw.Interpolator
	cfg       FotosConfig
	log       logging.Logger
}

// NewFotoService creates a new FotoService with the given configuration.
// It initializes the "fotos" repository for image bodies and the "cache"
// repository for thumbnails.
func NewFotoService(
	ctx context.Context,
	fotoRepo foto.Repository,
	repoFactory blob.RepositoryFactory,
	cfg FotosConfig,
) (*FotoService, error) {
	interpol, err := getInterpolatorByName(cfg.Interpolator)
	if err != nil {
		return nil, err
	}

	imageRepo, err := repoFactory(ctx, "fotos", "png")
	if err != nil {
		return nil, fmt.Errorf("new image repository: %w", err)
	}

	cacheRepo, err := repoFactory(ctx, "cache", "png")
	if err != nil {
		return nil, fmt.Errorf("new cache repository: %w", err)
	}

	return &FotoService{
		fotoRepo:  fotoRepo,
		imageRepo: imageRepo,
		cacheRepo: cacheRepo,
		interpol:  interpol,
		cfg:       cfg,
		log:       logging.GetLogger("svc.fotosvc.foto_service"),
	}, nil
}

// MaxBodySize returns the upload body limit.
func (s *FotoService) MaxBodySize() int64 {
	return s.cfg.MaxBodySize
}

// Upload stores the images of form and records a foto created by creadoPor.
// The original image is required; the annotated rendition is optional.
func (s *FotoService) Upload(ctx context.Context, form UploadForm, creadoPor string) (created *domain.Foto, err error) {
	nombre := strings.TrimSpace(form.Nombre)
	log := s.log.With(logging.Group("foto", "nombre", nombre, "creado_por", creadoPor))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "foto upload failed", errutil.Attrs(err)...)
		} else {
			log.InfoContext(ctx, "foto uploaded", logging.Group("foto", "id", created.ID))
		}
	}()

	if nombre == "" || strings.TrimSpace(form.Original) == "" {
		return nil, fmt.Errorf("%w: nombre and original are required", domain.ErrFotoInvalid)
	}

	anotaciones, err := normalizeAnotaciones(form.Anotaciones)
	if err != nil {
		return nil, err
	}

	original, err := s.decodeImage(form.Original)
	if err != nil {
		return nil, fmt.Errorf("original: %w", err)
	}

	images := []*domain.Blob{original}

	var anotada *domain.Blob

	if strings.TrimSpace(form.Anotada) != "" {
		if anotada, err = s.decodeImage(form.Anotada); err != nil {
			return nil, fmt.Errorf("anotada: %w", err)
		}

		if anotada.ID != original.ID {
			images = append(images, anotada)
		}
	}

	// Locks are held until the row exists, so a concurrent delete cannot prune the blobs in between.
	unlock, err := s.lockAll(ctx, images)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var stored []domain.BlobID

	// Runs before unlock, so blobs this call stored are discarded under the same locks.
	defer func() {
		if err != nil {
			s.discard(ctx, stored)
		}
	}()

	for _, img := range images {
		if s.imageRepo.Exists(ctx, img.ID) {
			continue
		}

		if err := s.imageRepo.Store(ctx, img); err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}

		stored = append(stored, img.ID)
	}

	//nolint:exhaustruct
	record := domain.Foto{
		Nombre:       nombre,
		CreadoPor:    creadoPor,
		OriginalBlob: original.ID,
		Anotaciones:  anotaciones,
	}
	if anotada != nil {
		record.AnotadaBlob = anotada.ID
	}

	created, err = s.fotoRepo.CreateFoto(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("create foto: %w", err)
	}

	return created, nil
}

// Get returns the foto with the given ID.
func (s *FotoService) Get(ctx context.Context, id int64) (*domain.Foto, error) {
	f, err := s.fotoRepo.GetFoto(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get foto: %w", err)
	}

	return f, nil
}

// List returns every foto, newest first.
func (s *FotoService) List(ctx context.Context) ([]domain.Foto, error) {
	fotos, err := s.fotoRepo.ListFotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fotos: %w", err)
	}

	return fotos, nil
}

// Delete removes a foto and prunes the image blobs and thumbnails nothing references anymore.
func (s *FotoService) Delete(ctx context.Context, id int64) (err error) {
	log := s.log.With(logging.Group("foto", "id", id))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "foto delete failed", errutil.Attrs(err)...)
		} else {
			log.InfoContext(ctx, "foto deleted")
		}
	}()

	f, err := s.fotoRepo.GetFoto(ctx, id)
	if err != nil {
		return fmt.Errorf("get foto: %w", err)
	}

	if err := s.fotoRepo.DeleteFoto(ctx, id); err != nil {
		return fmt.Errorf("delete foto: %w", err)
	}

	var errs []error

	for _, blobID := range referencedBlobs(*f) {
		pruned, err := s.prune(ctx, blobID)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		log.DebugContext(ctx, "foto blob released", logging.Group("blob", "id", blobID, "pruned", pruned))
	}

	return errors.Join(errs...)
}

// Image returns the PNG of a foto's variant. A non-zero width returns a thumbnail
// scaled to that width; widths at or above the image width return the image itself.
func (s *FotoService) Image(
	ctx context.Context,
	id int64,
	variant domain.FotoVariant,
	width int,
) (img *domain.Blob, err error) {
	log := s.log.With(logging.Group("foto", "id", id, "variant", variant, "width", width))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "foto image fetch failed", errutil.Attrs(err)...)
		} else {
			log.DebugContext(ctx, "foto image fetched")
		}
	}()

	if width < 0 || width > s.cfg.MaxWidth {
		return nil, fmt.Errorf("%w: %w: must be between 1 and %d",
			domain.ErrFotoInvalid, domain.ErrInvalidWidth, s.cfg.MaxWidth)
	}

	f, err := s.fotoRepo.GetFoto(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get foto: %w", err)
	}

	blobID, ok := f.Blob(variant)
	if !ok {
		return nil, fmt.Errorf("%w: no %s image", domain.ErrFotoNotFound, variant)
	}

	// The read lock also covers the thumbnail, so prune cannot leave an orphaned cache entry.
	unlock, err := s.imageRepo.Lock(ctx, blobID, false)
	if err != nil {
		return nil, fmt.Errorf("lock image: %w", err)
	}
	defer unlock()

	original, err := s.imageRepo.Fetch(ctx, blobID)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}

	if width == 0 {
		return original, nil
	}

	cfg, err := checkPNG(original.Bytes())
	if err != nil {
		return nil, fmt.Errorf("stored image: %w", err)
	}

	if width >= cfg.Width {
		return original, nil
	}

	return s.thumbnail(ctx, original, width)
}

func (s *FotoService) thumbnail(ctx context.Context, original *domain.Blob, width int) (*domain.Blob, error) {
	cacheID := domain.BlobID(fmt.Sprintf("%s_%d", original.ID, width))

	unlock, err := s.cacheRepo.Lock(ctx, cacheID, false)
	if err != nil {
		return nil, fmt.Errorf("lock cache: %w", err)
	}
	defer unlock()

	if s.cacheRepo.Exists(ctx, cacheID) {
		cached, err := s.cacheRepo.Fetch(ctx, cacheID)
		if err == nil {
			return cached, nil
		}

		s.log.WarnContext(ctx, "cached thumbnail unreadable", logging.Group("blob", "id", cacheID), "error", err)
	}

	resized, err := resizePNG(original.Bytes(), width, s.interpol)
	if err != nil {
		return nil, fmt.Errorf("resize image: %w", err)
	}

	//nolint:exhaustruct
	thumb := &domain.Blob{ID: cacheID, Body: resized}

	if err := s.cacheRepo.Store(ctx, thumb); err != nil {
		return nil, fmt.Errorf("store cache: %w", err)
	}

	return thumb, nil
}

// prune deletes blobID and its thumbnails when no foto references it.
func (s *FotoService) prune(ctx context.Context, blobID domain.BlobID) (bool, error) {
	unlock, err := s.imageRepo.Lock(ctx, blobID, true)
	if err != nil {
		return false, fmt.Errorf("lock image: %w", err)
	}
	defer unlock()

	refs, err := s.fotoRepo.CountBlobRefs(ctx, blobID)
	if err != nil {
		return false, fmt.Errorf("count refs: %w", err)
	}

	if refs > 0 {
		return false, nil
	}

	if err := s.imageRepo.Delete(ctx, blobID); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		return false, fmt.Errorf("delete image: %w", err)
	}

	if err := s.cacheRepo.DeleteAll(ctx, blobID, "_*"); err != nil {
		return true, fmt.Errorf("delete cache: %w", err)
	}

	return true, nil
}

// discard deletes blobs stored by a failed upload. The caller holds their locks.
func (s *FotoService) discard(ctx context.Context, blobIDs []domain.BlobID) {
	for _, blobID := range blobIDs {
		if err := s.imageRepo.Delete(ctx, blobID); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
			s.log.WarnContext(ctx, "orphaned image not discarded", logging.Group("blob", "id", blobID), "error", err)

			continue
		}

		if err := s.cacheRepo.DeleteAll(ctx, blobID, "_*"); err != nil {
			s.log.WarnContext(ctx, "orphaned thumbnails not discarded", logging.Group("blob", "id", blobID), "error", err)
		}
	}
}

func (s *FotoService) decodeImage(encoded string) (*domain.Blob, error) {
	data, err := decodeDataURL(encoded)
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > s.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrFotoTooLarge, len(data))
	}

	if _, err := checkPNG(data); err != nil {
		return nil, err
	}

	return domain.NewBlob(data), nil
}

// lockAll takes exclusive locks on images in ID order and returns a release for all of them.
func (s *FotoService) lockAll(ctx context.Context, images []*domain.Blob) (func(), error) {
	ids := make([]domain.BlobID, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.ID)
	}

	slices.Sort(ids)
	ids = slices.Compact(ids)

	unlocks := make([]func(), 0, len(ids))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, id := range ids {
		unlock, err := s.imageRepo.Lock(ctx, id, true)
		if err != nil {
			release()

			return nil, fmt.Errorf("lock image: %w", err)
		}

		unlocks = append(unlocks, unlock)
	}

	return release, nil
}

func referencedBlobs(f domain.Foto) []domain.BlobID {
	ids := make([]domain.BlobID, 0, 2)

	if f.OriginalBlob != "" {
		ids = append(ids, f.OriginalBlob)
	}

	if f.AnotadaBlob != "" && f.AnotadaBlob != f.OriginalBlob {
		ids = append(ids, f.AnotadaBlob)
	}

	return ids
}
