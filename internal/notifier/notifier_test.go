package notifier

import "testing"

func TestTotalBatches(t *testing.T) {
	cases := []struct {
		pages int
		want  int
	}{
		{1, 1},
		{10, 1},
		{11, 2},
		{20, 2},
		{25, 3},
	}
	for _, c := range cases {
		if got := TotalBatches(c.pages); got != c.want {
			t.Errorf("TotalBatches(%d) = %d, want %d", c.pages, got, c.want)
		}
	}
}

func TestContinuationCaption_EscapesMarkdown(t *testing.T) {
	got := ContinuationCaption(2, 3)
	want := "\\(continued 2/3\\)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
