package domain

import (
	"errors"
	"time"
)

var (
	// ErrMedidaNotFound is returned when a medida does not exist.
	ErrMedidaNotFound = errors.New("medida not found")
	// ErrMedidaInvalid is returned when nombre or unidad is missing.
	ErrMedidaInvalid = errors.New("nombre and unidad are required")
)

// Medida is a named unit of measurement used by quotes and orders.
type Medida struct {
	ID          int64     `json:"id"`
	Nombre      string    `json:"nombre"`
	Unidad      string    `json:"unidad"`
	Descripcion string    `json:"descripcion"`
	CreadoPor   string    `json:"creadoPor"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MedidaInput carries the editable fields of a medida.
type MedidaInput struct {
	Nombre      string `json:"nombre"`
	Unidad      string `json:"unidad"`
	Descripcion string `json:"descripcion"`
}

// Check reports ErrMedidaInvalid when a required field is empty.
func (in MedidaInput) Check() error {
	if in.Nombre == "" || in.Unidad == "" {
		return ErrMedidaInvalid
	}

	return nil
}
