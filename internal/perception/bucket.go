package perception

import "time"

// leakyBucket gates burst-style patterns: cheap, imprecise salience. Each
// add leaks the level by elapsed time first; crossing the threshold fires
// and drains the bucket, so the next fire needs a whole new burst.
type leakyBucket struct {
	capacity      float64
	leakPerSecond float64
	threshold     float64

	level    float64
	lastLeak time.Time
	lastSeen time.Time
}

func newLeakyBucket(capacity, leakPerSecond, threshold float64, now time.Time) *leakyBucket {
	return &leakyBucket{
		capacity:      capacity,
		leakPerSecond: leakPerSecond,
		threshold:     threshold,
		lastLeak:      now,
		lastSeen:      now,
	}
}

func (b *leakyBucket) add(n float64, now time.Time) bool {
	b.leak(now)
	b.lastSeen = now
	b.level += n
	if b.level > b.capacity {
		b.level = b.capacity
	}
	if b.level >= b.threshold {
		b.level = 0
		return true
	}
	return false
}

func (b *leakyBucket) leak(now time.Time) {
	elapsed := now.Sub(b.lastLeak).Seconds()
	if elapsed <= 0 {
		return
	}
	b.level -= elapsed * b.leakPerSecond
	if b.level < 0 {
		b.level = 0
	}
	b.lastLeak = now
}

func (b *leakyBucket) idleSince(now time.Time) time.Duration {
	return now.Sub(b.lastSeen)
}
