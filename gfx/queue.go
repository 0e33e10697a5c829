package gfx

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/recorder/dynheap"
	"github.com/vkngwrapper/recorder/internal/utils"
	"github.com/vkngwrapper/recorder/native"
)

type inFlightList struct {
	list       *CommandList
	fenceValue uint64
}

// CommandQueue submits command lists of one type and owns the fence that tracks their
// progress. Command lists are handed out by GetCommandList and come back to the queue when
// they are submitted; they are reset and reused once the GPU has finished with them.
type CommandQueue struct {
	device   *Device
	listType native.CommandListType
	native   native.CommandQueue
	fence    native.Fence

	fenceMutex utils.OptionalMutex
	fenceValue uint64

	listMutex utils.OptionalMutex
	available []*CommandList
	inFlight  []inFlightList
	created   int
}

func newCommandQueue(device *Device, listType native.CommandListType) (*CommandQueue, error) {
	queue, err := device.native.CreateCommandQueue(listType)
	if err != nil {
		return nil, deviceFailure(err, "failed to create %s command queue", listType)
	}

	fence, err := device.native.CreateFence(0)
	if err != nil {
		queue.Release()
		return nil, deviceFailure(err, "failed to create fence for %s command queue", listType)
	}

	return &CommandQueue{
		device:     device,
		listType:   listType,
		native:     queue,
		fence:      fence,
		fenceMutex: utils.OptionalMutex{UseMutex: device.useMutex},
		listMutex:  utils.OptionalMutex{UseMutex: device.useMutex},
	}, nil
}

func (q *CommandQueue) Type() native.CommandListType { return q.listType }
func (q *CommandQueue) Native() native.CommandQueue { return q.native }
func (q *CommandQueue) Fence() native.Fence { return q.fence }

// GetCommandList returns a command list ready for recording. Lists whose work has completed
// on the GPU are reset and reused before new ones are created.
func (q *CommandQueue) GetCommandList() (*CommandList, error) {
	q.listMutex.Lock()
	q.reclaimLocked()
	var list *CommandList
	if len(q.available) > 0 {
		list = q.available[0]
		q.available = q.available[1:]
	}
	q.listMutex.Unlock()

	if list != nil {
		return list, nil
	}

	list, err := newCommandList(q.device, q.listType)
	if err != nil {
		return nil, err
	}

	q.listMutex.Lock()
	q.created++
	q.listMutex.Unlock()

	return list, nil
}

func (q *CommandQueue) reclaimLocked() {
	completed := q.fence.CompletedValue()

	kept := q.inFlight[:0]
	for _, entry := range q.inFlight {
		if entry.fenceValue > completed {
			kept = append(kept, entry)
			continue
		}

		err := entry.list.Reset()
		if err != nil {
			q.device.logger.LogAttrs(context.Background(), slog.LevelError, "CommandQueue::reclaim failed to reset command list",
				slog.String("queue", q.listType.String()),
				slog.Any("error", err),
			)
			entry.list.destroy()
			continue
		}
		q.available = append(q.available, entry.list)
	}
	for i := len(kept); i < len(q.inFlight); i++ {
		q.inFlight[i] = inFlightList{}
	}
	q.inFlight = kept
}

func (q *CommandQueue) recycle(lists ...*CommandList) {
	q.listMutex.Lock()
	defer q.listMutex.Unlock()

	for _, list := range lists {
		if list.Status() == CommandListStatusRecording {
			q.available = append(q.available, list)
		} else {
			list.destroy()
		}
	}
}

// discard resets lists that were closed but never submitted and makes them available again
func (q *CommandQueue) discard(lists ...*CommandList) {
	for _, list := range lists {
		err := list.Reset()
		if err != nil {
			q.device.logger.LogAttrs(context.Background(), slog.LevelError, "CommandQueue::discard failed to reset command list",
				slog.String("queue", q.listType.String()),
				slog.Any("error", err),
			)
			list.destroy()
			continue
		}
		q.recycle(list)
	}
}

func (q *CommandQueue) destroyLists(lists ...*CommandList) {
	for _, list := range lists {
		list.destroy()
	}
}

// ExecuteCommandList submits a single list. See ExecuteCommandLists.
func (q *CommandQueue) ExecuteCommandList(list *CommandList) (uint64, error) {
	return q.ExecuteCommandLists(list)
}

// ExecuteCommandLists closes and submits lists in order and returns the fence value that will
// be signaled when they complete. Each list's pending transitions are resolved against the
// global state registry and recorded into an extra list submitted just before it, and its
// final states are committed to the registry. Lists must not be used again after submission;
// the queue resets and reuses them once the GPU is done. A submission that fails hands the
// lists back to the queue as well, and none of their states are committed.
//
// If any of the lists requested a compute follow-up, those follow-ups are submitted to the
// device's compute queue after it waits for this submission.
func (q *CommandQueue) ExecuteCommandLists(lists ...*CommandList) (uint64, error) {
	if len(lists) == 0 {
		return q.Signal()
	}

	for _, list := range lists {
		if list.Type() != q.listType {
			return 0, errors.Newf("cannot execute a %s command list on a %s queue", list.Type(), q.listType)
		}
		if list.Status() != CommandListStatusRecording {
			return 0, errors.Wrapf(ErrInvalidState, "cannot execute a command list that is %s", list.Status())
		}
	}

	pending := make([]*CommandList, 0, len(lists))
	for range lists {
		list, err := q.GetCommandList()
		if err != nil {
			q.recycle(pending...)
			return 0, err
		}
		pending = append(pending, list)
	}

	nativeLists := make([]native.CommandList, 0, len(lists)*2)
	var followUps []*CommandList

	// Every list is closed before any of them commits, so a failed close leaves the registry
	// untouched
	for i, list := range lists {
		err := list.closeNative(pending[i])
		if err != nil {
			q.discard(lists[:i]...)
			q.destroyLists(list)
			q.recycle(pending...)
			return 0, err
		}
	}

	registry := q.device.registry
	registry.Lock()
	for i, list := range lists {
		hasPending := list.commit(pending[i]) > 0
		if hasPending {
			nativeLists = append(nativeLists, pending[i].native)
		}
		nativeLists = append(nativeLists, list.native)

		if list.followUp != nil {
			followUps = append(followUps, list.followUp)
			list.followUp = nil
		}
	}

	// Pending lists only hold barriers, so their close happens after commit. A failure here is
	// a device failure and the registry no longer describes the GPU.
	for i := range lists {
		err := pending[i].closeNative(nil)
		if err != nil {
			registry.Unlock()
			q.discard(lists...)
			q.discard(pending[:i]...)
			q.destroyLists(followUps...)
			q.destroyLists(pending[i])
			q.recycle(pending[i+1:]...)
			return 0, err
		}
	}
	q.native.ExecuteCommandLists(nativeLists)
	registry.Unlock()

	fenceValue, err := q.Signal()
	if err != nil {
		return 0, err
	}

	marker := dynheap.Marker{Fence: q.fence, Value: fenceValue}
	q.listMutex.Lock()
	for i, list := range lists {
		list.markSubmitted(marker)
		pending[i].markSubmitted(marker)
		q.inFlight = append(q.inFlight, inFlightList{list: pending[i], fenceValue: fenceValue}, inFlightList{list: list, fenceValue: fenceValue})
	}
	q.listMutex.Unlock()

	if len(followUps) > 0 {
		compute := q.device.CommandQueue(native.CommandListTypeCompute)
		err = compute.Wait(q)
		if err != nil {
			return 0, err
		}
		_, err = compute.ExecuteCommandLists(followUps...)
		if err != nil {
			return 0, err
		}
	}

	return fenceValue, nil
}

// Signal enqueues a signal of the queue's fence and returns the value it will reach
func (q *CommandQueue) Signal() (uint64, error) {
	q.fenceMutex.Lock()
	defer q.fenceMutex.Unlock()

	fenceValue := q.fenceValue + 1
	err := q.native.Signal(q.fence, fenceValue)
	if err != nil {
		return 0, deviceFailure(err, "failed to signal %s queue fence to %d", q.listType, fenceValue)
	}
	q.fenceValue = fenceValue
	return fenceValue, nil
}

// LastSignaledValue returns the fence value of the most recent signal
func (q *CommandQueue) LastSignaledValue() uint64 {
	q.fenceMutex.Lock()
	defer q.fenceMutex.Unlock()

	return q.fenceValue
}

// CompletedFenceValue returns the highest fence value the GPU has reached
func (q *CommandQueue) CompletedFenceValue() uint64 {
	return q.fence.CompletedValue()
}

func (q *CommandQueue) IsFenceComplete(fenceValue uint64) bool {
	return q.fence.CompletedValue() >= fenceValue
}

// WaitForFenceValue blocks until the queue's fence reaches fenceValue or timeout elapses. A
// negative timeout waits forever. It returns false if the wait timed out.
func (q *CommandQueue) WaitForFenceValue(fenceValue uint64, timeout time.Duration) bool {
	if q.IsFenceComplete(fenceValue) {
		return true
	}

	done := q.fence.Done(fenceValue)
	if timeout < 0 {
		<-done
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		q.device.logger.LogAttrs(context.Background(), slog.LevelWarn, "CommandQueue::WaitForFenceValue timed out",
			slog.String("queue", q.listType.String()),
			slog.Uint64("fenceValue", fenceValue),
			slog.Uint64("completedValue", q.fence.CompletedValue()),
			slog.Duration("timeout", timeout),
		)
		return false
	}
}

// Flush signals the fence and waits for it, bounded by CreateOptions.FenceTimeout. It returns
// false if the wait timed out.
func (q *CommandQueue) Flush() (bool, error) {
	fenceValue, err := q.Signal()
	if err != nil {
		return false, err
	}
	return q.WaitForFenceValue(fenceValue, q.device.options.FenceTimeout), nil
}

// Wait makes the GPU hold work submitted to this queue after the call until other's most
// recent signal is reached. The CPU does not block.
func (q *CommandQueue) Wait(other *CommandQueue) error {
	fenceValue := other.LastSignaledValue()
	err := q.native.Wait(other.fence, fenceValue)
	if err != nil {
		return deviceFailure(err, "%s queue failed to wait for %s queue fence value %d", q.listType, other.listType, fenceValue)
	}
	return nil
}

// CommandListCount returns the number of command lists the queue has created
func (q *CommandQueue) CommandListCount() int {
	q.listMutex.Lock()
	defer q.listMutex.Unlock()

	return q.created
}

// InFlightCount returns the number of submitted command lists that have not been reclaimed
func (q *CommandQueue) InFlightCount() int {
	q.listMutex.Lock()
	defer q.listMutex.Unlock()

	return len(q.inFlight)
}

func (q *CommandQueue) printStats(json jwriter.ObjectState) {
	json.Name("FenceValue").Int(int(q.LastSignaledValue()))
	json.Name("CompletedValue").Int(int(q.fence.CompletedValue()))

	q.listMutex.Lock()
	defer q.listMutex.Unlock()

	json.Name("CommandLists").Int(q.created)
	json.Name("Available").Int(len(q.available))
	json.Name("InFlight").Int(len(q.inFlight))
}

func (q *CommandQueue) destroy() error {
	q.listMutex.Lock()
	defer q.listMutex.Unlock()

	var err error
	if len(q.inFlight) > 0 && !q.IsFenceComplete(q.inFlight[len(q.inFlight)-1].fenceValue) {
		err = errors.Newf("%d %s command lists were still executing", len(q.inFlight), q.listType)
	}

	for _, entry := range q.inFlight {
		entry.list.destroy()
	}
	for _, list := range q.available {
		list.destroy()
	}
	q.inFlight = nil
	q.available = nil

	q.fence.Release()
	q.native.Release()
	return err
}
