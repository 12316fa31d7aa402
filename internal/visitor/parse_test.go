package visitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"98765 43210", "9876543210", true},
		{"+91-98765-43210", "9876543210", true},
		{"12345", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := CleanPhone(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestAccompanyingCount(t *testing.T) {
	cases := map[string]int{
		"":                          0,
		"No one":                    0,
		"alone":                     0,
		"-":                         0,
		"Ravi":                      1,
		"Ravi (brother), Anita":     2,
		"Ravi and Anita & Meera":    3,
		"mother, father":            0,
		"Ravi - Anita":              2,
		"Suresh; friend\nKavya":     2,
		"elder sister and Priya":    1,
	}
	for in, want := range cases {
		assert.Equal(t, want, AccompanyingCount(in), "%q", in)
	}
}

func TestInterests(t *testing.T) {
	assert.Equal(t, `[]`, Interests(""))
	assert.Equal(t, `["AI","Robotics"]`, Interests(" AI , Robotics,"))
	assert.Equal(t, `["Arts & Design","say \"hi\""]`, Interests(`Arts & Design, say "hi"`))
}

func TestVisitDate(t *testing.T) {
	got, ok := VisitDate("Sunday 30th November 2025")
	assert.True(t, ok)
	assert.Equal(t, "2025-11-30", got)

	got, ok = VisitDate("Saturday 1st November 2025")
	assert.True(t, ok)
	assert.Equal(t, "2025-11-01", got)

	_, ok = VisitDate("30/11/2025")
	assert.False(t, ok)
	_, ok = VisitDate("Sunday 30th Novembre 2025")
	assert.False(t, ok)
}

func TestEmail(t *testing.T) {
	got, ok := Email("  Student@Example.EDU ")
	assert.True(t, ok)
	assert.Equal(t, "student@example.edu", got)

	_, ok = Email("not-an-email")
	assert.False(t, ok)
	_, ok = Email("")
	assert.False(t, ok)
}

func TestName(t *testing.T) {
	assert.Equal(t, "Anita Rao", Name("  Anita Rao \t"))
	assert.Equal(t, "Anita  Rao", Name("Anita  Rao"), "inner spacing is not normalised")
	assert.Equal(t, "", Name("   "))
}
