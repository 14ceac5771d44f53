package ids

import (
	"crypto/rand"
)

const tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// LoginTokenLen is the length of the nonce registered with the auth
// service during start-login.
const LoginTokenLen = 32

// LoginToken mints an unguessable URL-safe alphanumeric nonce.
func LoginToken() string {
	return randomToken(LoginTokenLen)
}

func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform entropy source is
		// broken; there is no sane fallback for a login nonce.
		panic(err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(out)
}
