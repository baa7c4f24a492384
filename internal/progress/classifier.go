// Package progress keeps a normalized view of the host's background tasks
// and produces change-detected snapshots of it.
package progress

import "strings"

// Kind classifies a tracked task.
type Kind string

const (
	KindIndexing Kind = "indexing"
	KindBuild    Kind = "build"
	KindSync     Kind = "sync"
)

// Keyword groups are checked in this order; the first hit wins. Sync is
// checked before build so "Gradle sync" or "Importing Maven projects" are
// not reported as builds.
var keywordGroups = []struct {
	kind     Kind
	keywords []string
}{
	{KindIndexing, []string{"index", "scan"}},
	{KindSync, []string{"sync", "import", "dependenc", "resolv", "download"}},
	{KindBuild, []string{"build", "compil", "gradle", "maven", "make", "assembl", "link", "bazel", "cargo"}},
}

// Classify maps a task's title and detail text to a Kind. Tasks matching no
// keyword return false and are left out of snapshots.
func Classify(title, detail string) (Kind, bool) {
	text := strings.ToLower(title + " " + detail)
	for _, g := range keywordGroups {
		for _, kw := range g.keywords {
			if strings.Contains(text, kw) {
				return g.kind, true
			}
		}
	}
	return "", false
}
