// Package pathutil provides path normalization and joining for remote
// storage paths and object keys.
package pathutil

import (
	"path"
	"strings"
)

// Normalize cleans a relative path and ensures forward slashes.
// It applies: backslashes → slashes, Clean as if rooted, trim slashes.
// Leading ".." elements are dropped, so the result never climbs above
// the directory it is later joined to. Returns "." for empty paths.
func Normalize(p string) string {
	if p == "" {
		return "."
	}

	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.Trim(p, "/")

	if p == "" {
		return "."
	}

	return p
}

// NormalizePrefix normalizes an object key prefix:
// - Converts backslashes to forward slashes
// - Removes leading and trailing slashes
// - Returns empty string if prefix is "." or empty.
func NormalizePrefix(prefix string) string {
	if prefix == "" || prefix == "." {
		return ""
	}

	prefix = strings.ReplaceAll(prefix, "\\", "/")
	prefix = path.Clean(prefix)
	prefix = strings.Trim(prefix, "/")

	if prefix == "." {
		return ""
	}

	return prefix
}

// Join builds the full remote path of name inside folder.
//
// The result is rooted whenever folder is empty or absolute, matching how
// FTP and SFTP servers address uploads ("" and "/" both mean the server root).
// A relative folder yields a relative path, resolved by the server against
// the login directory.
//
//	Join("/uploads", "a/b/c.png") == "/uploads/a/b/c.png"
//	Join("", "c.png")             == "/c.png"
//	Join("home", "c.png")         == "home/c.png"
//	Join("/uploads", "../c.png")  == "/uploads/c.png"
func Join(folder, name string) string {
	name = Normalize(name)
	folder = strings.ReplaceAll(folder, "\\", "/")

	if folder == "" || strings.HasPrefix(folder, "/") {
		return path.Clean("/" + strings.TrimPrefix(folder, "/") + "/" + name)
	}

	return path.Clean(folder + "/" + name)
}

// JoinKey joins a normalized prefix with a name to create an object key.
// Object keys never carry a leading slash.
func JoinKey(prefix, name string) string {
	name = Normalize(name)

	if name == "." {
		return prefix
	}

	if prefix == "" {
		return name
	}

	return prefix + "/" + name
}

// Dir returns the parent directory of a remote path.
func Dir(p string) string {
	return path.Dir(p)
}

// Base returns everything after the last slash of p. Unlike path.Base it
// does not clean p first, so "http://host/a/" yields "".
func Base(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// URL joins a public base URL and a relative path with exactly one slash.
func URL(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(name, "/")
}
