package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a bcrypt hash of a plaintext password at the
// configured cost. The cost comes from BCRYPT_COST so environments can
// trade hashing latency against brute-force resistance.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt
// hash. The comparison runs in constant time; any bcrypt error counts
// as a mismatch.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
