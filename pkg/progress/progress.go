// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package progress models per-file transfer progress as a structured event
// stream consumed by an observer.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// 📊 Kind classifies a transfer event.
type Kind int

const (
	KindStart Kind = iota
	KindDone
	KindError
)

// String returns a string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// 📦 Event is one step of a transfer.
type Event struct {
	Kind  Kind
	Path  string // staging-relative path of the file or subtree
	Bytes int64  // bytes moved, when known
	Err   error  // set for KindError
}

// 👀 Observer consumes transfer events. Implementations must tolerate
// concurrent Notify calls.
type Observer interface {
	Notify(Event)
}

// 🙈 Nop discards all events.
type Nop struct{}

func (Nop) Notify(Event) {}

// 🖥️ Console prints one line per terminal event.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// 🏭 NewConsole creates a console observer writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Notify(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case KindDone:
		fmt.Fprintf(c.out, "    %s %s\n", color.New(color.FgGreen).Sprint("✓"), ev.Path)
	case KindError:
		fmt.Fprintf(c.out, "    %s %s: %v\n", color.New(color.FgRed).Sprint("✗"), ev.Path, ev.Err)
	}
}

// 🧾 Recorder captures events for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given kind were captured.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
