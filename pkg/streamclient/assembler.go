package streamclient

import (
	"sync"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
)

// Assembler folds stream events into one assistant Message.
//
// Chunks are buffered and flushed after the debounce interval. Every tool_call
// starts a timer that marks the call as failed unless its tool_result arrives
// first. Timer callbacks run on their own goroutines; all state is guarded by
// mu and onUpdate is called with it held.
type Assembler struct {
	mu          sync.Mutex
	msg         Message
	buf         string
	flushTimer  *time.Timer
	toolTimers  map[int]*time.Timer
	debounce    time.Duration
	toolTimeout time.Duration
	onUpdate    func(Message)
	done        bool
}

// NewAssembler creates an Assembler for a message that starts streaming.
// onUpdate may be nil.
func NewAssembler(debounce, toolTimeout time.Duration, onUpdate func(Message)) *Assembler {
	if onUpdate == nil {
		onUpdate = func(Message) {}
	}
	return &Assembler{
		msg:         Message{IsStreaming: true},
		toolTimers:  make(map[int]*time.Timer),
		debounce:    debounce,
		toolTimeout: toolTimeout,
		onUpdate:    onUpdate,
	}
}

// Message returns a copy of the current state, buffered text excluded.
func (a *Assembler) Message() Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.msg.Clone()
}

// Done reports whether a terminal event was applied.
func (a *Assembler) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Apply folds one event into the message. Events after a terminal one are ignored.
func (a *Assembler) Apply(ev domain.StreamEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return
	}

	switch ev.Type {
	case domain.EventChunk:
		a.buf += ev.Content
		if a.flushTimer == nil {
			a.flushTimer = time.AfterFunc(a.debounce, a.timedFlush)
		}
		return

	case domain.EventToolCall:
		idx := len(a.msg.StreamingToolCalls)
		a.msg.StreamingToolCalls = append(a.msg.StreamingToolCalls, ToolCall{
			ToolName: ev.ToolName,
			Params:   ev.Params,
			Status:   ToolExecuting,
		})
		a.toolTimers[idx] = time.AfterFunc(a.toolTimeout, func() { a.toolExpired(idx) })

	case domain.EventToolResult:
		idx := a.pending(ev.ToolName)
		if idx < 0 {
			return
		}
		if t, ok := a.toolTimers[idx]; ok {
			t.Stop()
			delete(a.toolTimers, idx)
		}
		call := &a.msg.StreamingToolCalls[idx]
		call.Data = ev.Data
		if ev.Success != nil && *ev.Success {
			call.Status = ToolComplete
		} else {
			call.Status = ToolError
			if ev.Error != nil {
				call.Error = ev.Error.Message
			}
		}

	case domain.EventComplete:
		a.flushLocked()
		for _, c := range a.msg.StreamingToolCalls {
			if c.Status == ToolComplete {
				a.msg.ToolCalls = append(a.msg.ToolCalls, c)
			}
		}
		a.finishLocked()

	case domain.EventError:
		a.flushLocked()
		e := domain.StreamError{Type: domain.StreamErrorGeneral, Message: "Something went wrong. Please try again.", Retryable: true}
		if ev.Error != nil {
			e = *ev.Error
		}
		a.msg.Error = &e
		a.finishLocked()

	default:
		return
	}
	a.onUpdate(a.msg.Clone())
}

// Fail terminates the message with err unless a terminal event was applied.
func (a *Assembler) Fail(err *domain.StreamError) {
	a.Apply(domain.StreamEvent{Type: domain.EventError, Error: err})
}

// Close stops the timers and flushes buffered text of a stream that ended
// without a terminal event.
func (a *Assembler) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return
	}
	a.flushLocked()
	a.finishLocked()
	a.onUpdate(a.msg.Clone())
}

// pending returns the first executing call of tool, or -1.
func (a *Assembler) pending(tool string) int {
	for i, c := range a.msg.StreamingToolCalls {
		if c.ToolName == tool && c.Status == ToolExecuting {
			return i
		}
	}
	return -1
}

func (a *Assembler) timedFlush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return
	}
	if a.flushLocked() {
		a.onUpdate(a.msg.Clone())
	}
}

func (a *Assembler) toolExpired(idx int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done || idx >= len(a.msg.StreamingToolCalls) {
		return
	}
	delete(a.toolTimers, idx)
	call := &a.msg.StreamingToolCalls[idx]
	if call.Status != ToolExecuting {
		return
	}
	call.Status = ToolError
	call.Error = "tool call timed out"
	a.onUpdate(a.msg.Clone())
}

func (a *Assembler) flushLocked() bool {
	if a.flushTimer != nil {
		a.flushTimer.Stop()
		a.flushTimer = nil
	}
	if a.buf == "" {
		return false
	}
	a.msg.Content += a.buf
	a.buf = ""
	return true
}

func (a *Assembler) finishLocked() {
	for idx, t := range a.toolTimers {
		t.Stop()
		delete(a.toolTimers, idx)
	}
	a.msg.IsStreaming = false
	a.done = true
}
