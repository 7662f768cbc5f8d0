// Package store implements the service repositories on MongoDB.
package store

import (
	"errors"
	"fmt"

	"connectly/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// translate maps driver errors onto the repository sentinels.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, models.ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
