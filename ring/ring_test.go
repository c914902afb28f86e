package ring

import (
	"sync"
	"testing"
)

func TestNew_RoundsCapacity(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 1},
		{1, 1},
		{3, 4},
		{64, 64},
		{65, 128},
	}
	for _, tc := range tests {
		if got := New[int](tc.in, DropNewest).Cap(); got != tc.want {
			t.Errorf("New(%d).Cap() = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRing_FIFO(t *testing.T) {
	r := New[int](8, DropNewest)
	for i := 0; i < 5; i++ {
		if _, dropped := r.Push(i); dropped {
			t.Fatalf("push %d dropped", i)
		}
	}
	if r.Len() != 5 {
		t.Errorf("Len = %d, want 5", r.Len())
	}
	for i := 0; i < 5; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("Pop = %d, %v; want %d", v, ok, i)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Error("Pop on empty ring succeeded")
	}
}

func TestRing_DropNewest(t *testing.T) {
	r := New[int](4, DropNewest)
	for i := 0; i < 4; i++ {
		r.Push(i)
	}
	lost, dropped := r.Push(99)
	if !dropped || lost != 99 {
		t.Fatalf("Push on full = %d, %v; want 99, true", lost, dropped)
	}

	var got []int
	r.Drain(func(v int) { got = append(got, v) })
	want := []int{0, 1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("drained %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drained[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	st := r.Stats()
	if st.Pushed != 4 || st.Dropped != 1 {
		t.Errorf("stats = %+v, want 4 pushed 1 dropped", st)
	}
}

func TestRing_DropOldest(t *testing.T) {
	r := New[int](4, DropOldest)
	for i := 0; i < 4; i++ {
		r.Push(i)
	}
	lost, dropped := r.Push(4)
	if !dropped || lost != 0 {
		t.Fatalf("Push on full = %d, %v; want 0, true", lost, dropped)
	}
	lost, dropped = r.Push(5)
	if !dropped || lost != 1 {
		t.Fatalf("Push on full = %d, %v; want 1, true", lost, dropped)
	}

	var got []int
	r.Drain(func(v int) { got = append(got, v) })
	want := []int{2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("drained %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drained[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if st := r.Stats(); st.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", st.Dropped)
	}
}

func TestRing_SingleValue(t *testing.T) {
	t.Run("drop-newest", func(t *testing.T) {
		r := New[int](1, DropNewest)
		if _, dropped := r.Push(1); dropped {
			t.Fatal("first push dropped")
		}
		lost, dropped := r.Push(2)
		if !dropped || lost != 2 {
			t.Fatalf("second push = %d, %v; want 2, true", lost, dropped)
		}
		if r.Len() != 1 {
			t.Errorf("Len = %d, want 1", r.Len())
		}
		if v, ok := r.Pop(); !ok || v != 1 {
			t.Fatalf("Pop = %d, %v; want 1", v, ok)
		}
		if _, ok := r.Pop(); ok {
			t.Error("Pop on empty ring succeeded")
		}
		for i := 0; i < 10; i++ {
			r.Push(i)
			if v, ok := r.Pop(); !ok || v != i {
				t.Fatalf("iteration %d: Pop = %d, %v", i, v, ok)
			}
		}
	})

	t.Run("drop-oldest", func(t *testing.T) {
		r := New[int](1, DropOldest)
		r.Push(1)
		lost, dropped := r.Push(2)
		if !dropped || lost != 1 {
			t.Fatalf("second push = %d, %v; want 1, true", lost, dropped)
		}
		if v, ok := r.Pop(); !ok || v != 2 {
			t.Fatalf("Pop = %d, %v; want 2", v, ok)
		}
		if st := r.Stats(); st.Dropped != 1 || st.Cap != 1 {
			t.Errorf("Stats = %+v", st)
		}
	})
}

func TestRing_WrapAround(t *testing.T) {
	r := New[int](2, DropNewest)
	for i := 0; i < 100; i++ {
		r.Push(i)
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("iteration %d: Pop = %d, %v", i, v, ok)
		}
	}
}

func TestRing_ConcurrentOrder(t *testing.T) {
	for _, policy := range []Policy{DropNewest, DropOldest} {
		t.Run(policy.String(), func(t *testing.T) {
			const n = 20000
			r := New[int](64, policy)

			var wg sync.WaitGroup
			wg.Add(1)
			var received []int
			done := make(chan struct{})
			go func() {
				defer wg.Done()
				for {
					if v, ok := r.Pop(); ok {
						received = append(received, v)
						continue
					}
					select {
					case <-done:
						r.Drain(func(v int) { received = append(received, v) })
						return
					default:
					}
				}
			}()

			var lost int
			for i := 0; i < n; i++ {
				if _, dropped := r.Push(i); dropped {
					lost++
				}
			}
			close(done)
			wg.Wait()

			for i := 1; i < len(received); i++ {
				if received[i] <= received[i-1] {
					t.Fatalf("out of order at %d: %d after %d", i, received[i], received[i-1])
				}
			}
			st := r.Stats()
			if got := uint64(len(received)) + st.Dropped; got != n {
				t.Errorf("received %d + dropped %d = %d, want %d", len(received), st.Dropped, got, n)
			}
			if lost == 0 && st.Dropped != 0 {
				t.Errorf("Push reported no loss but Dropped = %d", st.Dropped)
			}
		})
	}
}

func TestPolicy_String(t *testing.T) {
	if DropNewest.String() != "drop-newest" || DropOldest.String() != "drop-oldest" {
		t.Error("unexpected policy names")
	}
	if Policy(9).String() != "unknown" {
		t.Error("unknown policy should stringify as unknown")
	}
}

func BenchmarkRing_PushPop(b *testing.B) {
	r := New[[4]int32](256, DropNewest)
	var v [4]int32
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.Push(v)
		r.Pop()
	}
}
