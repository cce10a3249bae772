package stornet

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aloksahay/fairbnb-sub000/merkle"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	downloadPriorityLow = iota + 1
	downloadPriorityHigh
)

type (
	downloadPriority int8

	segmentKey struct {
		root  merkle.Root
		index uint64
	}

	segmentResponse struct {
		ch   chan struct{}
		data []byte
		err  error

		key       segmentKey
		priority  downloadPriority
		index     int
		timestamp time.Time
	}

	priorityQueue []*segmentResponse

	// A SegmentDownloader fetches payload segments from the storage nodes.
	// It limits the number of in-flight requests to avoid overloading the
	// nodes, de-duplicates concurrent fetches of the same segment, and
	// caches segments to avoid redundant downloads.
	SegmentDownloader struct {
		nodes   []*NodeClient
		log     *zap.Logger
		timeout time.Duration

		ch   chan struct{}
		stop chan struct{}
		once sync.Once

		mu    sync.Mutex // protects the fields below
		cache *lru.TwoQueueCache[segmentKey, *segmentResponse]
		queue *priorityQueue
	}
)

func (dp downloadPriority) String() string {
	switch dp {
	case downloadPriorityLow:
		return "low"
	case downloadPriorityHigh:
		return "high"
	default:
		panic("invalid download priority")
	}
}

func (h priorityQueue) Len() int { return len(h) }

func (h priorityQueue) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].timestamp.Before(h[j].timestamp)
}

func (h priorityQueue) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityQueue) Push(t any) {
	n := len(*h)
	task := t.(*segmentResponse)
	task.index = n
	*h = append(*h, task)
}

func (h *priorityQueue) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	item.index = -1 // for safety
	*h = old[0 : n-1]
	return item
}

var _ heap.Interface = &priorityQueue{}

func (sr *segmentResponse) wait(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-sr.ch:
	}
	if sr.err != nil {
		return nil, sr.err
	}
	return sr.data, nil
}

func (sd *SegmentDownloader) doDownloadTask(task *segmentResponse, log *zap.Logger) {
	log = log.Named("doDownloadTask").With(zap.Stringer("root", task.key.root), zap.Uint64("segment", task.key.index), zap.Stringer("priority", task.priority))
	start := time.Now()

	// the fetch is detached from the requester's context so a cancelled
	// waiter does not fail the download for everyone else queued behind it
	ctx, cancel := context.WithTimeout(context.Background(), sd.timeout)
	defer cancel()

	var data []byte
	var err error
	for n := 0; n < len(sd.nodes); n++ {
		node := sd.nodes[(int(task.key.index)+n)%len(sd.nodes)]
		data, err = node.DownloadSegment(ctx, task.key.root, task.key.index)
		if err == nil && len(data) == 0 {
			err = errors.New("node returned an empty segment")
		}
		if err == nil {
			break
		}
		log.Debug("segment fetch failed", zap.String("endpoint", node.Endpoint()), zap.Error(err))
	}
	if err != nil {
		log.Error("failed to download segment", zap.Error(err))
		task.err = err
		sd.mu.Lock()
		sd.cache.Remove(task.key)
		sd.mu.Unlock()
		close(task.ch)
		return
	}

	log.Debug("downloaded segment", zap.Int("size", len(data)), zap.Duration("elapsed", time.Since(start)))
	task.data = data
	close(task.ch)
}

func (sd *SegmentDownloader) getResponse(key segmentKey, priority downloadPriority) *segmentResponse {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	if task, ok := sd.cache.Get(key); ok {
		// bump the priority if the task is still queued
		if task.priority < priority && task.index != -1 {
			task.priority = priority
			heap.Fix(sd.queue, task.index)
		}
		return task
	}
	task := &segmentResponse{
		key:       key,
		priority:  priority,
		timestamp: time.Now(),
		ch:        make(chan struct{}),
	}
	sd.cache.Add(key, task)
	heap.Push(sd.queue, task)
	go func() {
		select {
		case sd.ch <- struct{}{}:
		case <-sd.stop:
		}
	}()
	return task
}

func (sd *SegmentDownloader) downloadWorker(n int) {
	log := sd.log.Named("worker").With(zap.Int("id", n))
	for {
		select {
		case <-sd.stop:
			return
		case <-sd.ch:
		}

		sd.mu.Lock()
		if sd.queue.Len() == 0 {
			sd.mu.Unlock()
			continue
		}
		task := heap.Pop(sd.queue).(*segmentResponse)
		sd.mu.Unlock()
		sd.doDownloadTask(task, log)
	}
}

// Prefetch queues a background fetch of a segment without waiting for it.
func (sd *SegmentDownloader) Prefetch(root merkle.Root, index uint64) {
	sd.getResponse(segmentKey{root: root, index: index}, downloadPriorityLow)
}

// Segment returns one segment of the payload addressed by root, fetching it
// if no fetch is cached or in flight.
func (sd *SegmentDownloader) Segment(ctx context.Context, root merkle.Root, index uint64) ([]byte, error) {
	return sd.getResponse(segmentKey{root: root, index: index}, downloadPriorityHigh).wait(ctx)
}

// Close stops the download workers.
func (sd *SegmentDownloader) Close() error {
	sd.once.Do(func() {
		close(sd.stop)
	})
	return nil
}

// NewSegmentDownloader creates a SegmentDownloader fetching from the given
// nodes with at most workers concurrent node requests.
func NewSegmentDownloader(nodes []*NodeClient, cacheSize, workers int, timeout time.Duration, log *zap.Logger) (*SegmentDownloader, error) {
	if len(nodes) == 0 {
		return nil, errors.New("at least one storage node is required")
	}
	cache, err := lru.New2Q[segmentKey, *segmentResponse](cacheSize)
	if err != nil {
		return nil, err
	}

	sd := &SegmentDownloader{
		nodes:   nodes,
		log:     log,
		timeout: timeout,
		cache:   cache,
		queue:   &priorityQueue{},

		ch:   make(chan struct{}, workers),
		stop: make(chan struct{}),
	}
	heap.Init(sd.queue)
	for i := 0; i < workers; i++ {
		go sd.downloadWorker(i)
	}
	return sd, nil
}
