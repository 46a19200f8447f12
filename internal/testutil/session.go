package testutil

// DefaultSession is the token FixedSessionGenerator falls back to.
const DefaultSession = "test-session-default"

// FixedSessionGenerator returns the same session token every time, so two
// runs of one scenario record byte-identical event logs.
//
// Unlike engine.FixedGenerator, which hands out tokens in sequence and
// panics when they run out, this generator never exhausts.
//
// Implements engine.SessionGenerator.
type FixedSessionGenerator struct {
	token string
}

// NewFixedSessionGenerator creates a generator for token.
// An empty token means DefaultSession.
func NewFixedSessionGenerator(token string) *FixedSessionGenerator {
	if token == "" {
		token = DefaultSession
	}
	return &FixedSessionGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedSessionGenerator) Generate() string {
	return g.token
}
