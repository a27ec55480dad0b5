package clock

import "testing"

func TestTickIncreasesMonotonically(t *testing.T) {
	c := NewLogicalClock()
	a := c.Tick()
	b := c.Tick()
	if b <= a {
		t.Fatalf("expected b > a, got a=%d b=%d", a, b)
	}
}

func TestUpdateAdoptsLargerRemoteTime(t *testing.T) {
	c := NewLogicalClock()
	c.Tick() // time=1

	got := c.Update(10)
	if got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
}

func TestUpdateIgnoresSmallerRemoteTime(t *testing.T) {
	c := NewLogicalClock()
	c.Update(100) // time=101

	got := c.Update(5)
	if got != 102 {
		t.Fatalf("expected local clock to just tick past the stale remote time, got %d", got)
	}
}

func TestCompareClocks(t *testing.T) {
	a := NewLogicalClock()
	b := NewLogicalClock()
	b.Tick()

	if CompareClocks(a.Time(), b.Time()) >= 0 {
		t.Fatalf("expected a < b")
	}
	if CompareClocks(b.Time(), a.Time()) <= 0 {
		t.Fatalf("expected b > a")
	}
	if CompareClocks(a.Time(), a.Time()) != 0 {
		t.Fatalf("expected a == a")
	}
}
