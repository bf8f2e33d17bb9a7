package mind

import (
	"sync"

	"github.com/keshon/kokoroflow/internal/ai"
)

// ImageBudget is the image quota of one model payload. It is shared by
// pointer between the extraction steps and only ever decreases.
type ImageBudget struct {
	mu        sync.Mutex
	remaining int
	cap       int
}

func NewImageBudget(capacity int) *ImageBudget {
	capacity = max(0, capacity)
	return &ImageBudget{remaining: capacity, cap: capacity}
}

// TryReserve takes up to n images from the budget. It returns how many were
// granted and how many could not be (shortfall). remaining never goes negative.
func (b *ImageBudget) TryReserve(n int) (granted, shortfall int) {
	if n <= 0 {
		return 0, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	granted = min(n, b.remaining)
	b.remaining -= granted
	return granted, n - granted
}

func (b *ImageBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Used is the number of images reserved so far.
func (b *ImageBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cap - b.remaining
}

func (b *ImageBudget) Cap() int { return b.cap }

// SelectImages admits images for one payload. The current message is served
// first; what is left backfills history newest-first. history is ordered
// oldest-first and the result keeps that shape, with trimmed entries.
func SelectImages(b *ImageBudget, current []ai.Image, history [][]ai.Image) ([]ai.Image, [][]ai.Image) {
	n, _ := b.TryReserve(len(current))
	cur := current[:n:n]

	hist := make([][]ai.Image, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		imgs := history[i]
		if len(imgs) == 0 {
			continue
		}
		got, _ := b.TryReserve(len(imgs))
		if got == 0 {
			break
		}
		// within one message keep the last images, they are the newest
		hist[i] = imgs[len(imgs)-got:]
	}
	return cur, hist
}
