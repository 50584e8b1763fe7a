package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: "."},
		{name: "simple file", input: "c.png", expected: "c.png"},
		{name: "nested path", input: "a/b/c.png", expected: "a/b/c.png"},
		{name: "leading slash", input: "/a/b/c.png", expected: "a/b/c.png"},
		{name: "trailing slash", input: "a/b/", expected: "a/b"},
		{name: "backslashes", input: "a\\b\\c.png", expected: "a/b/c.png"},
		{name: "dots", input: "a/./b/../c.png", expected: "a/c.png"},
		{name: "only slashes", input: "///", expected: "."},
		{name: "leading parent", input: "../../etc/passwd", expected: "etc/passwd"},
		{name: "only parents", input: "../..", expected: "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "dot", input: ".", expected: ""},
		{name: "root", input: "/", expected: ""},
		{name: "simple", input: "uploads", expected: "uploads"},
		{name: "both slashes", input: "/uploads/images/", expected: "uploads/images"},
		{name: "backslashes", input: "uploads\\images", expected: "uploads/images"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePrefix(tt.input))
		})
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		name     string
		folder   string
		input    string
		expected string
	}{
		{name: "absolute folder", folder: "/uploads", input: "a/b/c.png", expected: "/uploads/a/b/c.png"},
		{name: "root folder", folder: "/", input: "a/b/c.png", expected: "/a/b/c.png"},
		{name: "empty folder", folder: "", input: "c.png", expected: "/c.png"},
		{name: "folder with trailing slash", folder: "/uploads/", input: "c.png", expected: "/uploads/c.png"},
		{name: "relative folder", folder: "home/www", input: "c.png", expected: "home/www/c.png"},
		{name: "name with leading slash", folder: "/uploads", input: "/c.png", expected: "/uploads/c.png"},
		{name: "name escaping with dots", folder: "/uploads", input: "../c.png", expected: "/uploads/c.png"},
		{name: "name escaping to root", folder: "/uploads", input: "../../etc/evil.png", expected: "/uploads/etc/evil.png"},
		{name: "name escaping relative folder", folder: "home", input: "../../c.png", expected: "home/c.png"},
		{name: "backslash escape", folder: "/uploads", input: "..\\..\\c.png", expected: "/uploads/c.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Join(tt.folder, tt.input))
		})
	}
}

func TestJoinKey(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		input    string
		expected string
	}{
		{name: "empty prefix", prefix: "", input: "a/b.txt", expected: "a/b.txt"},
		{name: "with prefix", prefix: "uploads", input: "a/b.txt", expected: "uploads/a/b.txt"},
		{name: "leading slash in name", prefix: "uploads", input: "/a/b.txt", expected: "uploads/a/b.txt"},
		{name: "dot name", prefix: "uploads", input: ".", expected: "uploads"},
		{name: "name escaping prefix", prefix: "uploads", input: "../secret.txt", expected: "uploads/secret.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, JoinKey(tt.prefix, tt.input))
		})
	}
}

func TestBase(t *testing.T) {
	assert.Equal(t, "c.png", Base("http://localhost/a/b/c.png"))
	assert.Equal(t, "c.png", Base("c.png"))
	assert.Equal(t, "", Base("http://localhost/a/"))
}

func TestDir(t *testing.T) {
	assert.Equal(t, "/uploads/a/b", Dir("/uploads/a/b/c.png"))
	assert.Equal(t, "/", Dir("/c.png"))
}

func TestURL(t *testing.T) {
	assert.Equal(t, "http://localhost/a/b/c.png", URL("http://localhost", "a/b/c.png"))
	assert.Equal(t, "http://localhost/a/b/c.png", URL("http://localhost/", "/a/b/c.png"))
}
