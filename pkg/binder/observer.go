package binder

// MessageResult classifies a dispatched message for observers.
type MessageResult string

const (
	MessageDispatched   MessageResult = "dispatched"
	MessageParseError   MessageResult = "parse_error"
	MessageHandlerError MessageResult = "handler_error"
)

// Observer receives lifecycle counters. Implementations must be cheap and
// must not block; they are called on transport goroutines.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed(remote bool)
	SessionBound(evicted bool)
	MessageReceived(result MessageResult)
	HandlerFailed(stage Stage)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()             {}
func (nopObserver) ConnectionClosed(bool)         {}
func (nopObserver) SessionBound(bool)             {}
func (nopObserver) MessageReceived(MessageResult) {}
func (nopObserver) HandlerFailed(Stage)           {}
