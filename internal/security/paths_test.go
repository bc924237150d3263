package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWithin(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		want    string
		wantErr bool
	}{
		{name: "plain", file: "train_data.json", want: filepath.Join(dir, "train_data.json")},
		{name: "nested", file: "a/b.json", want: filepath.Join(dir, "a", "b.json")},
		{name: "dot dot inside", file: "a/../b.json", want: filepath.Join(dir, "b.json")},
		{name: "parent", file: "../b.json", wantErr: true},
		{name: "absolute", file: "/etc/passwd", wantErr: true},
		{name: "empty", file: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(dir, tt.file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWithin_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet")
	got, err := ResolveWithin(dir, "state.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state.json"), got)
}

func TestCheckWithin_Symlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	err := CheckWithin(filepath.Join(link, "new.json"), root)
	assert.ErrorIs(t, err, ErrEscapesDirectory)

	_, err = ResolveWithin(root, "link/new.json")
	assert.ErrorIs(t, err, ErrEscapesDirectory)

	assert.NoError(t, CheckWithin(filepath.Join(root, "ok.json"), root))
}
