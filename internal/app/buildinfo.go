package app

// Build information populated via -ldflags.
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = "unknown"
)

// UserAgent identifies page fetches.
func UserAgent() string {
	return "newsdigest/" + BuildVersion + " (+https://github.com/hyperifyio/newsdigest)"
}
