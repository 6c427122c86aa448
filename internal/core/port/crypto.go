package port

// Argon2Params captures tunable parameters for the Argon2id hashing algorithm.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicyValidator enforces password strength requirements. userInputs are
// account attributes (such as the email) a password must not be derived from.
type PasswordPolicyValidator interface {
	Validate(password string, userInputs ...string) error
}

// Randomizer picks uniformly distributed indexes in [0, n).
type Randomizer interface {
	IntN(n int) int
}
