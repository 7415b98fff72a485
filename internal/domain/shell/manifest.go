// Package shell describes the application shell: the assets the offline cache
// installs, the install icons, and the installability checks.
package shell

// DefaultManifest lists the shell assets installed into the offline cache,
// relative to the shell scope.
var DefaultManifest = []string{
	"./",
	"index.html",
	"script.js",
	"styles/main.css",
	"styles/base.css",
	"styles/filters.css",
	"styles/lists.css",
	"styles/messages.css",
	"styles/navigation.css",
	"styles/player.css",
	"styles/responsive.css",
	"styles/search.css",
	"styles/views.css",
	"manifest.json",
	"offline.html",
	"icons/icon-192x192.png",
	"icons/icon-512x512.png",
}

// Manifest returns the configured manifest, or DefaultManifest when none is set.
func Manifest(override []string) []string {
	if len(override) > 0 {
		out := make([]string, len(override))
		copy(out, override)
		return out
	}
	out := make([]string, len(DefaultManifest))
	copy(out, DefaultManifest)
	return out
}
