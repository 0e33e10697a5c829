package fake

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/recorder/native"
)

type QueueEventKind string

const (
	QueueEventExecute QueueEventKind = "Execute"
	QueueEventSignal  QueueEventKind = "Signal"
	QueueEventWait    QueueEventKind = "Wait"
)

// QueueEvent is one call made against a CommandQueue
type QueueEvent struct {
	Kind  QueueEventKind
	Lists []*CommandList
	Fence native.Fence
	Value uint64
}

type pendingSignal struct {
	fence *Fence
	value uint64
}

type CommandQueue struct {
	mutex    sync.Mutex
	listType native.CommandListType
	manual   bool
	pending  []pendingSignal

	Events   []QueueEvent
	Released bool
}

var _ native.CommandQueue = &CommandQueue{}

func (q *CommandQueue) Type() native.CommandListType { return q.listType }

func (q *CommandQueue) ExecuteCommandLists(lists []native.CommandList) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	event := QueueEvent{Kind: QueueEventExecute}
	for _, list := range lists {
		fakeList := list.(*CommandList)
		if !fakeList.closed {
			panic("executing a command list that has not been closed")
		}
		if fakeList.listType != q.listType {
			panic("executing a command list on a queue of a different type")
		}
		event.Lists = append(event.Lists, fakeList)
	}
	q.Events = append(q.Events, event)
}

func (q *CommandQueue) Signal(fence native.Fence, value uint64) error {
	fakeFence, ok := fence.(*Fence)
	if !ok {
		return errors.New("fence was not created by the fake device")
	}

	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.Events = append(q.Events, QueueEvent{Kind: QueueEventSignal, Fence: fence, Value: value})
	if q.manual {
		q.pending = append(q.pending, pendingSignal{fence: fakeFence, value: value})
	} else {
		fakeFence.Complete(value)
	}
	return nil
}

func (q *CommandQueue) Wait(fence native.Fence, value uint64) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.Events = append(q.Events, QueueEvent{Kind: QueueEventWait, Fence: fence, Value: value})
	return nil
}

// CompleteNext completes the oldest signal still held by a manual queue. It returns false if
// there is none.
func (q *CommandQueue) CompleteNext() bool {
	q.mutex.Lock()
	if len(q.pending) == 0 {
		q.mutex.Unlock()
		return false
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.mutex.Unlock()

	next.fence.Complete(next.value)
	return true
}

// CompletePending completes every signal held by a manual queue, in order
func (q *CommandQueue) CompletePending() {
	for q.CompleteNext() {
	}
}

// Executed returns every command list submitted to the queue, in submission order
func (q *CommandQueue) Executed() []*CommandList {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	var lists []*CommandList
	for _, event := range q.Events {
		if event.Kind == QueueEventExecute {
			lists = append(lists, event.Lists...)
		}
	}
	return lists
}

func (q *CommandQueue) Release() { q.Released = true }
