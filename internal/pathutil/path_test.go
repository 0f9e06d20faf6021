package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "nested path", path: "bucket/dir/file.bin", want: "bucket/dir"},
		{name: "single element", path: "file.bin", want: ""},
		{name: "trailing slash ignored", path: "bucket/dir/", want: "bucket"},
		{name: "rooted path", path: "/bucket/file.bin", want: "/bucket"},
		{name: "root-level rooted name", path: "/file.bin", want: "/"},
		{name: "empty path", path: "", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Parent(tt.path))
		})
	}
}

func TestBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "nested path", path: "bucket/dir/file.bin", want: "file.bin"},
		{name: "single element", path: "file.bin", want: "file.bin"},
		{name: "trailing slash ignored", path: "bucket/dir/", want: "dir"},
		{name: "rooted path", path: "/file.bin", want: "file.bin"},
		{name: "empty path", path: "", want: "."},
		{name: "dot path", path: ".", want: "."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Base(tt.path))
		})
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dir  string
		elem string
		want string
	}{
		{name: "plain join", dir: "bucket/dir", elem: "file.bin", want: "bucket/dir/file.bin"},
		{name: "empty dir", dir: "", elem: "file.bin", want: "file.bin"},
		{name: "empty name", dir: "bucket", elem: "", want: "bucket"},
		{name: "duplicate separators elided", dir: "bucket/", elem: "/file.bin", want: "bucket/file.bin"},
		{name: "root dir", dir: "/", elem: "file.bin", want: "/file.bin"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Join(tt.dir, tt.elem))
		})
	}
}

func TestParentBaseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"a/b/c", "dir/file.bin", "/rooted/name"} {
		assert.Equal(t, path, Join(Parent(path), Base(path)))
	}
}
