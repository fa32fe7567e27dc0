package watcher

import "os"

// EventKind is the closed set of notification kinds the router consumes.
type EventKind int

const (
	// FileModified is a change to a regular file inside a watched directory.
	FileModified EventKind = iota

	// DirModified is a change to a directory inside a watched directory.
	DirModified

	// Other is any notification the pipeline does not act on (removed
	// paths, sockets, symlinks, and so on).
	Other
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case FileModified:
		return "file-modified"
	case DirModified:
		return "dir-modified"
	case Other:
		return "other"
	default:
		return "unknown"
	}
}

// Event is one filesystem change notification.
type Event struct {
	Path string
	Kind EventKind
}

// classify maps a notification path to an Event by inspecting what the path
// currently is. A path that no longer exists, or is neither a regular file
// nor a directory, is Other.
func classify(path string) Event {
	fi, err := os.Stat(path)

	switch {
	case err != nil:
		return Event{Path: path, Kind: Other}
	case fi.IsDir():
		return Event{Path: path, Kind: DirModified}
	case fi.Mode().IsRegular():
		return Event{Path: path, Kind: FileModified}
	default:
		return Event{Path: path, Kind: Other}
	}
}
