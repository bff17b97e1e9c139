package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/seatledger/internal/auth"
	"github.com/MarkoPoloResearchLab/seatledger/internal/store/storeerr"
	"gorm.io/gorm"
)

func (store *Store) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	model := User{
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    unixOrNow(user.CreatedUnixUTC),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if storeerr.IsUniqueViolation(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeDuplicate, auth.ErrUserExists)
	}
	if err != nil {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeCreate, storeerr.Classify(err))
	}
	return mapUser(model), nil
}

func (store *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	var model User
	err := store.db.WithContext(ctx).Where("email = ?", email).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeLookup, auth.ErrUserNotFound)
	}
	if err != nil {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeLookup, storeerr.Classify(err))
	}
	return mapUser(model), nil
}

func mapUser(model User) auth.User {
	return auth.User{
		ID:             model.ID,
		Name:           model.Name,
		Email:          model.Email,
		PasswordHash:   model.PasswordHash,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
}
