package database

import (
	"errors"

	"gorm.io/gorm"
)

// IsDuplicate reports whether err is a unique-constraint violation. The
// dialector must be opened with TranslateError enabled.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
