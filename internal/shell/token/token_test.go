package token

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"simple", "ls -la", []string{"ls", "-la"}},
		{"double quotes", `echo "hello world"`, []string{"echo", "hello world"}},
		{"single quotes", "grep 'a b' file.txt", []string{"grep", "a b", "file.txt"}},
		{"surrounding space", "  pwd  ", []string{"pwd"}},
		{"no glob expansion", "ls *.txt", []string{"ls", "*.txt"}},
		{"pipe is a literal token", "echo a | wc", []string{"echo", "a", "|", "wc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			argv, err := Split(tc.text)
			if err != nil {
				t.Fatalf("split %q: %v", tc.text, err)
			}
			if !reflect.DeepEqual(argv, tc.want) {
				t.Fatalf("split %q = %v, want %v", tc.text, argv, tc.want)
			}
		})
	}
}

func TestSplitErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"unterminated quote", `echo "unterminated`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Split(tc.text); err == nil {
				t.Fatalf("expected error for %q", tc.text)
			}
		})
	}
}
