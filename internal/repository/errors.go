package repository

import (
	"errors"
	"fmt"

	"pulse/internal/domain"

	"gorm.io/gorm"
)

// wrap maps gorm.ErrRecordNotFound to domain.ErrNotFound and annotates everything else.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
