package password

import (
	"errors"
	"strings"
)

// ErrUnsupportedHash se devuelve cuando el formato almacenado no es reconocido.
var ErrUnsupportedHash = errors.New("unsupported password hash")

// Hasher genera y verifica hashes de password.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// Multi hashea con Primary y verifica cualquier formato conocido, para que
// cuentas con hashes argon2id heredados sigan funcionando.
type Multi struct {
	Primary Hasher
	Bcrypt  Hasher
	Argon2  Hasher
}

func NewDefault() *Multi {
	b := NewBcrypt(0)
	return &Multi{
		Primary: b,
		Bcrypt:  b,
		Argon2:  NewArgon2(DefaultArgon2Params()),
	}
}

func (m *Multi) Hash(plain string) (string, error) {
	return m.Primary.Hash(plain)
}

func (m *Multi) Verify(plain, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return m.Argon2.Verify(plain, encoded)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return m.Bcrypt.Verify(plain, encoded)
	default:
		return false, ErrUnsupportedHash
	}
}
