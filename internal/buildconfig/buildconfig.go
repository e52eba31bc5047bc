package buildconfig

// Set via -ldflags "-X github.com/Harshitk-cp/feedbackd/internal/buildconfig.version=..."
var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// UserAgent identifies outbound requests (uploads, AI calls).
func UserAgent() string {
	return "feedbackd/" + version
}

// Info returns version information for the health endpoint.
func Info() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
