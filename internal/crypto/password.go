package crypto

import "golang.org/x/crypto/bcrypt"

// passwordCost is fixed so that the hashing and verification paths can never
// diverge. Raising it only affects newly stored hashes.
const passwordCost = bcrypt.DefaultCost

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
