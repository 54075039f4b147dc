package concat

import (
	"fmt"

	"nbconcat/internal/protocol"
)

// Event is one fragment lifecycle event. The set of implementations is
// closed: OpenEvent, ChangeEvent, CloseEvent and RefreshEvent.
type Event interface {
	event()
}

type (
	OpenEvent    protocol.DidOpenTextDocumentParams
	ChangeEvent  protocol.DidChangeTextDocumentParams
	CloseEvent   protocol.DidCloseTextDocumentParams
	RefreshEvent protocol.RefreshNotebookParams
)

func (OpenEvent) event()    {}
func (ChangeEvent) event()  {}
func (CloseEvent) event()   {}
func (RefreshEvent) event() {}

// Handle dispatches ev to the matching handler.
func (d *Document) Handle(ev Event) *protocol.DidChangeTextDocumentParams {
	switch ev := ev.(type) {
	case OpenEvent:
		return d.HandleOpen(protocol.DidOpenTextDocumentParams(ev))
	case ChangeEvent:
		return d.HandleChange(protocol.DidChangeTextDocumentParams(ev))
	case CloseEvent:
		return d.HandleClose(protocol.DidCloseTextDocumentParams(ev))
	case RefreshEvent:
		return d.HandleRefresh(protocol.RefreshNotebookParams(ev))
	default:
		panic(fmt.Errorf("concat: unhandled event %T", ev))
	}
}

// EventURI returns the fragment an event addresses, or "" for refresh.
func EventURI(ev Event) string {
	switch ev := ev.(type) {
	case OpenEvent:
		return ev.TextDocument.URI
	case ChangeEvent:
		return ev.TextDocument.URI
	case CloseEvent:
		return ev.TextDocument.URI
	default:
		return ""
	}
}
