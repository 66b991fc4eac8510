package db

import (
	"errors"

	"gorm.io/gorm"

	"github.com/murmurhq/murmur/internal/models"
)

// translate maps a GORM or driver error onto the models error kinds
func translate(op, what string, err error) error {
	if err == nil {
		return nil
	}
	var merr *models.Error
	if errors.As(err, &merr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NotFound(op, what)
	}
	return models.StoreUnavailable(op, err)
}
