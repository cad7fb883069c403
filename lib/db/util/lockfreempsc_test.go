package util

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

type testEvent struct {
	producer int
	seq      int
}

// TestBasicOperations tests push and receive in order for one producer
func TestBasicOperations(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		if !q.Push(i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case val := <-q.Recv():
			if val != i {
				t.Errorf("Expected %d, got %d", i, val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case val := <-q.Recv():
		t.Errorf("Queue should be empty, but got %v", val)
	case <-time.After(10 * time.Millisecond):
	}
}

// TestConcurrentProducers checks that no element is lost or duplicated and
// that each producer's elements keep their order.
func TestConcurrentProducers(t *testing.T) {
	q := NewLockFreeMPSC[testEvent]()
	defer q.Close()

	const numProducers = 10
	const itemsPerProducer = 1000
	totalItems := numProducers * itemsPerProducer

	done := make(chan struct{})
	lastSeq := make([]int, numProducers)
	for i := range lastSeq {
		lastSeq[i] = -1
	}
	received := 0

	go func() {
		defer close(done)
		for received < totalItems {
			select {
			case ev := <-q.Recv():
				if ev.seq != lastSeq[ev.producer]+1 {
					t.Errorf("Producer %d: expected seq %d, got %d", ev.producer, lastSeq[ev.producer]+1, ev.seq)
				}
				lastSeq[ev.producer] = ev.seq
				received++
			case <-time.After(2 * time.Second):
				t.Errorf("Timeout waiting for items, received %d of %d", received, totalItems)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producer int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				if !q.Push(testEvent{producer: producer, seq: i}) {
					t.Errorf("Producer %d failed to push item %d", producer, i)
				}
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout waiting for consumer to finish")
	}

	if received != totalItems {
		t.Errorf("Expected %d items, got %d", totalItems, received)
	}
}

// TestCloseQueue verifies that queued elements survive Close
func TestCloseQueue(t *testing.T) {
	q := NewLockFreeMPSC[int]()

	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	q.Close()

	if q.Push(100) {
		t.Error("Should not be able to push after queue is closed")
	}
	if !q.IsClosed() {
		t.Error("IsClosed should report true")
	}

	for i := 0; i < 5; i++ {
		select {
		case val := <-q.Recv():
			if val != i {
				t.Errorf("Expected %d, got %d", i, val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d after close", i)
		}
	}

	select {
	case _, ok := <-q.Recv():
		if ok {
			t.Error("Channel should be closed but is still open")
		}
	case <-time.After(time.Second):
		t.Error("Channel was not closed after draining")
	}
}

// TestLen checks the pending counter once everything is drained
func TestLen(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	q.Close()

	n := 0
	for range q.Recv() {
		n++
	}
	if n != 100 {
		t.Errorf("Expected 100 elements, got %d", n)
	}
	if q.Len() != 0 {
		t.Errorf("Expected Len 0 after draining, got %d", q.Len())
	}
}

// TestSlowProducer pushes with pauses so the consumer parks between elements
func TestSlowProducer(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	go func() {
		for i := 0; i < 50; i++ {
			q.Push(i)
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 50; i++ {
		select {
		case val := <-q.Recv():
			if val != i {
				t.Fatalf("Expected %d, got %d", i, val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Consumer missed a wakeup at item %d", i)
		}
	}
}

func BenchmarkSingleProducer(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	go func() {
		for range q.Recv() {
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(i)
	}
}

func BenchmarkMultiProducer(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	go func() {
		for range q.Recv() {
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Push(i)
			i++
		}
	})
}

// TestCloseDuringPush checks that every element a Push accepted is delivered
// even when Close races with the producers.
func TestCloseDuringPush(t *testing.T) {
	for round := 0; round < 50; round++ {
		q := NewLockFreeMPSC[int]()

		const numProducers = 8
		var (
			accepted sync.WaitGroup
			counts   [numProducers]int
		)
		accepted.Add(numProducers)
		for p := 0; p < numProducers; p++ {
			go func(p int) {
				defer accepted.Done()
				for i := 0; i < 500; i++ {
					if !q.Push(p) {
						return
					}
					counts[p]++
				}
			}(p)
		}

		received := make(chan int)
		go func() {
			n := 0
			for range q.Recv() {
				n++
			}
			received <- n
		}()

		runtime.Gosched()
		q.Close()
		accepted.Wait()

		want := 0
		for _, c := range counts {
			want += c
		}
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("Round %d: %d pushes accepted, %d delivered", round, want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Round %d: consumer did not finish after Close", round)
		}
	}
}
