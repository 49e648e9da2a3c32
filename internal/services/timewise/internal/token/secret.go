package token

type secretProvider interface {
	Get() []byte
}

// Secret is a fixed HMAC key. The same bytes must be given to the session
// middleware that validates the tokens.
type Secret []byte

func (s Secret) Get() []byte {
	return s
}
