// Package medidasvc manages the shared catalog of measurement definitions.
package medidasvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/infra/logging"
	"github.com/mkrupp/vidrio/internal/repo/medida"
	"github.com/mkrupp/vidrio/internal/util/errutil"
)

// MedidaService validates input and delegates to the medida repository.
type MedidaService struct {
	repo medida.Repository
	log  logging.Logger
}

// NewMedidaService creates a new MedidaService.
func NewMedidaService(repo medida.Repository) *MedidaService {
	return &MedidaService{
		repo: repo,
		log:  logging.GetLogger("svc.medidasvc.medida_service"),
	}
}

func normalize(in domain.MedidaInput) domain.MedidaInput {
	return domain.MedidaInput{
		Nombre:      strings.TrimSpace(in.Nombre),
		Unidad:      strings.TrimSpace(in.Unidad),
		Descripcion: strings.TrimSpace(in.Descripcion),
	}
}

// Create adds a medida recorded as created by creadoPor.
// Returns domain.ErrMedidaInvalid when nombre or unidad is blank.
func (s *MedidaService) Create(
	ctx context.Context,
	in domain.MedidaInput,
	creadoPor string,
) (created *domain.Medida, err error) {
	in = normalize(in)
	log := s.log.With(logging.Group("medida", "nombre", in.Nombre, "creado_por", creadoPor))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "medida create failed", errutil.Attrs(err)...)
		} else {
			log.InfoContext(ctx, "medida created", logging.Group("medida", "id", created.ID))
		}
	}()

	if err := in.Check(); err != nil {
		return nil, err
	}

	created, err = s.repo.CreateMedida(ctx, in, creadoPor)
	if err != nil {
		return nil, fmt.Errorf("create medida: %w", err)
	}

	return created, nil
}

// Get returns the medida with the given ID.
func (s *MedidaService) Get(ctx context.Context, id int64) (*domain.Medida, error) {
	m, err := s.repo.GetMedida(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get medida: %w", err)
	}

	return m, nil
}

// List returns every medida, newest first.
func (s *MedidaService) List(ctx context.Context) ([]domain.Medida, error) {
	medidas, err := s.repo.ListMedidas(ctx)
	if err != nil {
		return nil, fmt.Errorf("list medidas: %w", err)
	}

	return medidas, nil
}

// Update replaces the editable fields of a medida.
func (s *MedidaService) Update(ctx context.Context, id int64, in domain.MedidaInput) (updated *domain.Medida, err error) {
	in = normalize(in)
	log := s.log.With(logging.Group("medida", "id", id))

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "medida update failed", errutil.Attrs(err)...)
		} else {
			log.InfoContext(ctx, "medida updated")
		}
	}()

	if err := in.Check(); err != nil {
		return nil, err
	}

	updated, err = s.repo.UpdateMedida(ctx, id, in)
	if err != nil {
		return nil, fmt.Errorf("update medida: %w", err)
	}

	return updated, nil
}

// Delete removes a medida.
func (s *MedidaService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteMedida(ctx, id); err != nil {
		return fmt.Errorf("delete medida: %w", err)
	}

	s.log.InfoContext(ctx, "medida deleted", logging.Group("medida", "id", id))

	return nil
}
