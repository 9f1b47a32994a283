package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "lowercase host", in: "HTTPS://Hay.Toolforge.org/toolinfo.json", want: "https://hay.toolforge.org/toolinfo.json"},
		{name: "default https port", in: "https://example.org:443/t.json", want: "https://example.org/t.json"},
		{name: "default http port", in: "http://example.org:80/t.json", want: "http://example.org/t.json"},
		{name: "custom port kept", in: "http://example.org:8080/t.json", want: "http://example.org:8080/t.json"},
		{name: "fragment dropped", in: "https://example.org/t.json#top", want: "https://example.org/t.json"},
		{name: "query sorted", in: "https://example.org/t.json?b=2&a=1", want: "https://example.org/t.json?a=1&b=2"},
		{name: "surrounding space", in: "  https://example.org/t.json ", want: "https://example.org/t.json"},
		{name: "ftp rejected", in: "ftp://example.org/t.json", wantErr: true},
		{name: "relative rejected", in: "/toolinfo.json", wantErr: true},
		{name: "missing host", in: "https:///t.json", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTargetURL)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
