package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, DefaultLimit},
		{-5, DefaultLimit},
		{10, 10},
		{MaxLimit, MaxLimit},
		{MaxLimit + 50, MaxLimit},
	}
	for _, tc := range cases {
		if got := NormalizeLimit(tc.in); got != tc.want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("LimitWithBuffer(10) = %d, want 11", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC),
		ID:        uuid.New(),
	}

	encoded := EncodeCursor(want)
	got, err := ParseCursor(encoded)
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if got == nil {
		t.Fatal("expected cursor, got nil")
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor(""); err != nil || c != nil {
		t.Fatalf("empty cursor should parse to nil, got %v %v", c, err)
	}
	if _, err := ParseCursor("not-base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := ParseCursor("bm8tcGlwZQ=="); err == nil {
		t.Fatal("expected error for missing separator")
	}
}

func TestTrimPage(t *testing.T) {
	rows := []Cursor{
		{CreatedAt: time.Now(), ID: uuid.New()},
		{CreatedAt: time.Now().Add(-time.Minute), ID: uuid.New()},
		{CreatedAt: time.Now().Add(-2 * time.Minute), ID: uuid.New()},
	}
	last := func(i int) Cursor { return rows[i] }

	keep, page := TrimPage(len(rows), 2, last)
	if keep != 2 {
		t.Fatalf("expected keep=2, got %d", keep)
	}
	if !page.HasMore || page.NextCursor == "" {
		t.Fatalf("expected next page metadata, got %+v", page)
	}
	parsed, err := ParseCursor(page.NextCursor)
	if err != nil {
		t.Fatalf("parse next cursor: %v", err)
	}
	if parsed.ID != rows[1].ID {
		t.Fatal("next cursor should point at the last kept row")
	}

	keep, page = TrimPage(2, 2, last)
	if keep != 2 || page.HasMore {
		t.Fatalf("full page without lookahead should not report more, got keep=%d %+v", keep, page)
	}
}
