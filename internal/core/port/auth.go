package port

import "github.com/Wyydra/pairchat/internal/core/domain"

type TokenIssuer interface {
	Issue(userID domain.UserID) (string, error)
	Verify(token string) (domain.UserID, error)
}

type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Compare(hash []byte, password string) error
}
