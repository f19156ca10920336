// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"strings"

	"yatube/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// FindOrNotFound loads the first row matched by tx into a T. A missing row
// becomes a NOT_FOUND AppError naming resource and key; other failures are
// wrapped as internal errors.
func FindOrNotFound[T any](tx *gorm.DB, resource string, key interface{}) (*T, error) {
	var out T
	if err := tx.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError(resource, key)
		}
		return nil, models.NewInternalError(err)
	}
	return &out, nil
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}
