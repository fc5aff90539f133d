package stream

import "sync"

// maxStreams caps open streams across all clients.
const maxStreams = 1000

// connLimiter counts open streams per client IP and in total.
type connLimiter struct {
	mu       sync.Mutex
	open     map[string]int
	total    int
	maxPerIP int
}

func newConnLimiter(maxPerIP int) *connLimiter {
	return &connLimiter{open: make(map[string]int), maxPerIP: maxPerIP}
}

// acquire reserves a slot for ip, reporting false when either limit is
// reached.
func (l *connLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= maxStreams || l.open[ip] >= l.maxPerIP {
		return false
	}
	l.open[ip]++
	l.total++
	return true
}

func (l *connLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open[ip] <= 1 {
		delete(l.open, ip)
	} else {
		l.open[ip]--
	}
	l.total--
}

func (l *connLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[ip]
}
