package vtlb

import "testing"

func TestHashTrivial(t *testing.T) {
	if got := HashTrivial(10, 4); got != 2 {
		t.Errorf("HashTrivial(10,4) = %d, want 2", got)
	}
}

func TestHashXXH64InRange(t *testing.T) {
	for _, key := range []uint64{0, 1, 42, ^uint64(0)} {
		if got := HashXXH64(key, 16); got >= 16 {
			t.Errorf("HashXXH64(%d, 16) = %d, want < 16", key, got)
		}
	}
	if HashXXH64(123, 16) == HashXXH64(124, 16) {
		t.Error("adjacent keys collided, hash looks degenerate")
	}
}

func TestHashBucketWithXXH64(t *testing.T) {
	b := NewHashBucket(16, HashXXH64, 8)
	_, h := b.Search(99)
	b.Insert(99, 777, h)

	present, h := b.Search(99)
	if !present || b.Get(h) != 777 {
		t.Error("expected hit with value 777 using HashXXH64")
	}
}

func TestHashBucketInsertSearchGet(t *testing.T) {
	b := NewHashBucket(16, HashTrivial, 8)

	present, handle := b.Search(42)
	if present {
		t.Fatal("expected miss on empty bucket")
	}
	b.Insert(42, 1234, handle)

	present, handle = b.Search(42)
	if !present {
		t.Fatal("expected hit after insert")
	}
	if got := b.Get(handle); got != 1234 {
		t.Errorf("Get = %d, want 1234", got)
	}
}

func TestHashBucketClear(t *testing.T) {
	b := NewHashBucket(8, HashTrivial, 4)
	_, h := b.Search(1)
	b.Insert(1, 99, h)
	b.Clear()
	present, _ := b.Search(1)
	if present {
		t.Error("expected miss after Clear")
	}
}

func TestHashBucketProbing(t *testing.T) {
	// Force a collision: size 4, trivial hash means keys 1 and 5 collide.
	b := NewHashBucket(4, HashTrivial, 4)
	_, h1 := b.Search(1)
	b.Insert(1, 100, h1)

	present, h2 := b.Search(5)
	if present {
		t.Fatal("5 should not be present yet")
	}
	b.Insert(5, 500, h2)

	present, h1again := b.Search(1)
	if !present || b.Get(h1again) != 100 {
		t.Error("key 1 lost after inserting colliding key 5")
	}
	present, h2again := b.Search(5)
	if !present || b.Get(h2again) != 500 {
		t.Error("key 5 not found via probing")
	}
}

func TestHashBucketOverwrite(t *testing.T) {
	b := NewHashBucket(8, HashTrivial, 4)
	_, h := b.Search(7)
	b.Insert(7, 1, h)
	_, h = b.Search(7)
	b.Insert(7, 2, h)

	present, h := b.Search(7)
	if !present || b.Get(h) != 2 {
		t.Error("expected overwritten value 2")
	}
}
