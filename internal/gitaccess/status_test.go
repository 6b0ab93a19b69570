package gitaccess

import "testing"

func TestClassifyPorcelainLine(t *testing.T) {
	cases := []struct {
		line   string
		exists bool
		want   StatusClass
	}{
		{"", true, StatusUnmodified},
		{"", false, StatusAbsent},
		{"!! ignored.txt", true, StatusIgnored},
		{"?? new.txt", true, StatusAdded},
		{"A  staged.txt", true, StatusAdded},
		{" D removed.txt", true, StatusDeleted},
		{" M changed.txt", true, StatusModified},
	}
	for _, c := range cases {
		if got := classifyPorcelainLine(c.line, c.exists); got != c.want {
			t.Errorf("classifyPorcelainLine(%q, %v) = %v, want %v", c.line, c.exists, got, c.want)
		}
	}
}
