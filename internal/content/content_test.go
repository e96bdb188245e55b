package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"", "", nil},
		{".", "", nil},
		{"/", "", nil},
		{"Digital Products/7/a.png", "Digital Products/7/a.png", nil},
		{"/Digital Products/7/", "Digital Products/7", nil},
		{"a/./b//c", "a/b/c", nil},
		{"a/b/../c", "a/c", nil},
		{`a\b\c.png`, "a/b/c.png", nil},
		{"a/..", "", nil},
		{"..", "", ErrOutsideRoot},
		{"../secret", "", ErrOutsideRoot},
		{"a/../../secret", "", ErrOutsideRoot},
		{`..\..\etc\passwd`, "", ErrOutsideRoot},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanKey(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoin(t *testing.T) {
	got, err := Join("Digital Products/7", "prints/a.png")
	require.NoError(t, err)
	assert.Equal(t, "Digital Products/7/prints/a.png", got)

	got, err = Join("", "/files/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, "files/b.pdf", got)

	_, err = Join("Digital Products/7", "../../../etc/passwd")
	require.ErrorIs(t, err, ErrOutsideRoot)
}

func TestWithin(t *testing.T) {
	assert.True(t, Within("", "anything"))
	assert.True(t, Within("a/b", "a/b"))
	assert.True(t, Within("a/b", "a/b/c"))
	assert.False(t, Within("a/b", "a/bc"))
	assert.False(t, Within("a/b", "a"))
}
