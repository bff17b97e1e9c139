package memstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/seatledger/internal/auth"
)

func (store *Store) CreateUser(_ context.Context, user auth.User) (auth.User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, exists := store.users[user.Email]; exists {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeDuplicate, auth.ErrUserExists)
	}
	store.nextUserID++
	user.ID = store.nextUserID
	store.users[user.Email] = user
	return user, nil
}

func (store *Store) FindUserByEmail(_ context.Context, email string) (auth.User, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	user, ok := store.users[email]
	if !ok {
		return auth.User{}, wrapStoreError(errorSubjectUser, errorCodeLookup, auth.ErrUserNotFound)
	}
	return user, nil
}
