package pgstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/seatledger/internal/auth"
	"github.com/MarkoPoloResearchLab/seatledger/internal/store/storeerr"
	"github.com/jackc/pgx/v5"
)

const (
	sqlInsertUser = `
		insert into users(name, email, password_hash, created_at)
		values ($1, $2, $3, to_timestamp($4))
		returning id
	`

	sqlSelectUserByEmail = `
		select id, name, email, password_hash, extract(epoch from created_at)::bigint
		from users where email = $1
	`
)

func (store *Store) CreateUser(ctx context.Context, user auth.User) (auth.User, error) {
	err := store.pool.QueryRow(ctx, sqlInsertUser, user.Name, user.Email, user.PasswordHash, user.CreatedUnixUTC).Scan(&user.ID)
	if storeerr.IsUniqueViolation(err) {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeDuplicate, auth.ErrUserExists)
	}
	if err != nil {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeCreate, storeerr.Classify(err))
	}
	return user, nil
}

func (store *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	var user auth.User
	err := store.pool.QueryRow(ctx, sqlSelectUserByEmail, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedUnixUTC)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeLookup, auth.ErrUserNotFound)
	}
	if err != nil {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeLookup, storeerr.Classify(err))
	}
	return user, nil
}
