package bot

import (
	"context"
	"sync"

	"w2gbot/internal/domain"
)

const chatQueueDepth = 16

// chatWorker drains one chat's updates in the order they were submitted.
type chatWorker struct {
	jobs chan func()
}

// chatQueues runs jobs for the same chat one after another, in submission
// order, and jobs for different chats in parallel. Workers are started on a
// chat's first update and live until the context they were started with ends.
type chatQueues struct {
	mu      sync.Mutex
	workers map[domain.ChatID]*chatWorker
	wg      sync.WaitGroup
}

func newChatQueues() *chatQueues {
	return &chatQueues{workers: make(map[domain.ChatID]*chatWorker)}
}

// Submit queues job behind the chat's earlier jobs. It blocks while the
// chat's queue is full and gives up when ctx ends.
func (q *chatQueues) Submit(ctx context.Context, chatID domain.ChatID, job func()) bool {
	if ctx.Err() != nil {
		return false
	}
	w := q.worker(ctx, chatID)
	select {
	case <-ctx.Done():
		return false
	case w.jobs <- job:
		return true
	}
}

func (q *chatQueues) worker(ctx context.Context, chatID domain.ChatID) *chatWorker {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w, ok := q.workers[chatID]; ok {
		return w
	}
	w := &chatWorker{jobs: make(chan func(), chatQueueDepth)}
	q.workers[chatID] = w

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-w.jobs:
				job()
			}
		}
	}()
	return w
}

// Wait blocks until every worker has exited.
func (q *chatQueues) Wait() {
	q.wg.Wait()
}
