// Package audit records who changed what in the tool inventory, the crawl
// target registry and the crawl run history.
package audit

import (
	"context"
	"fmt"
	"time"
)

// Kind is the entity type an entry refers to.
type Kind int

// Audited entity kinds.
const (
	KindTool Kind = iota + 1
	KindCrawlTarget
	KindCrawlRun
)

func (k Kind) String() string {
	switch k {
	case KindTool:
		return "tool"
	case KindCrawlTarget:
		return "crawl_target"
	case KindCrawlRun:
		return "crawl_run"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a stored kind label back to its Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindTool, KindCrawlTarget, KindCrawlRun} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown audit kind %q", s)
}

// Action is the change an entry records.
type Action string

// Audited actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionRevive Action = "revive"
	ActionStart  Action = "start"
	ActionFinish Action = "finish"
)

// Entry is one audit log line.
type Entry struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"-"`
	Action    Action    `json:"action"`
	Subject   string    `json:"subject"`
	Actor     string    `json:"actor"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder appends entries to an audit log.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop discards entries.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) error {
	return nil
}

type describer func(Entry) string

var describers = map[Kind]describer{
	KindTool: func(e Entry) string {
		return fmt.Sprintf("%s %sd tool %q", e.Actor, e.Action, e.Subject)
	},
	KindCrawlTarget: func(e Entry) string {
		switch e.Action {
		case ActionCreate:
			return fmt.Sprintf("%s registered crawl target %s", e.Actor, e.Subject)
		case ActionDelete:
			return fmt.Sprintf("%s removed crawl target %s", e.Actor, e.Subject)
		default:
			return fmt.Sprintf("%s %s crawl target %s", e.Actor, e.Action, e.Subject)
		}
	},
	KindCrawlRun: func(e Entry) string {
		switch e.Action {
		case ActionStart:
			return fmt.Sprintf("%s started crawl run %s", e.Actor, e.Subject)
		case ActionFinish:
			return fmt.Sprintf("%s finished crawl run %s", e.Actor, e.Subject)
		default:
			return fmt.Sprintf("%s %s crawl run %s", e.Actor, e.Action, e.Subject)
		}
	},
}

// Describe renders a human readable line for entry.
func Describe(entry Entry) string {
	if d, ok := describers[entry.Kind]; ok {
		return d(entry)
	}
	return fmt.Sprintf("%s %s %s %s", entry.Actor, entry.Action, entry.Kind, entry.Subject)
}
