// Package pathutil provides path manipulation for slash-separated storage paths.
package pathutil

import "strings"

// Parent returns the directory containing a slash-separated path. Trailing
// slashes are ignored. The parent of a root-level name is "", the parent of
// a rooted path keeps the leading slash.
func Parent(path string) string {
	path = strings.TrimSuffix(path, "/")
	i := strings.LastIndex(path, "/")
	switch {
	case i < 0:
		return ""
	case i == 0:
		return "/"
	default:
		return path[:i]
	}
}

// Base returns the last element of a slash-separated path.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Join glues two slash-separated path elements, eliding empty parts and
// duplicate separators.
func Join(dir, name string) string {
	name = strings.TrimPrefix(name, "/")
	if dir == "/" {
		return "/" + name
	}
	dir = strings.TrimSuffix(dir, "/")
	switch {
	case dir == "":
		return name
	case name == "":
		return dir
	default:
		return dir + "/" + name
	}
}
