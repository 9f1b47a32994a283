package toolinfo

import "testing"

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  --Foo__Bar--  ", "foo__bar"},
		{"a.b", "ab"},
		{"multiple   spaces - and -- dashes", "multiple-spaces-and-dashes"},
		{"Ünïcödé Tööl", "ünïcödé-tööl"},
		{"ﬁle", "file"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q; want %q", tt.in, got, tt.want)
		}
		if again := Slugify(Slugify(tt.in)); again != tt.want {
			t.Errorf("Slugify not idempotent for %q: %q", tt.in, again)
		}
	}
}

func TestFixName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"toolforge.hay", "toolforge-hay"},
		{"toolforge.Some Tool", "toolforge-some-tool"},
		{"Toolforge.hay", "toolforgehay"},
		{"hay-tools-directory", "hay-tools-directory"},
	}
	for _, tt := range tests {
		if got := FixName(tt.in); got != tt.want {
			t.Errorf("FixName(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func FuzzSlugifyIdempotent(f *testing.F) {
	for _, seed := range []string{"Hello World", "toolforge.x", "ß-straße", "日本語 ツール"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		once := Slugify(in)
		if twice := Slugify(once); twice != once {
			t.Errorf("Slugify(%q) = %q, then %q", in, once, twice)
		}
	})
}
