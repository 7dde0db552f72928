package router

// Category identifies which pipeline claimed a message.
type Category int

const (
	CategoryNone Category = iota
	CategoryRequest
	CategoryTestingRequest
	CategoryInternal
	CategoryDirectMessage
	CategoryModmailThread
	CategoryGeneric
)

func (c Category) String() string {
	switch c {
	case CategoryRequest:
		return "request"
	case CategoryTestingRequest:
		return "testing_request"
	case CategoryInternal:
		return "internal_progress"
	case CategoryDirectMessage:
		return "direct_message"
	case CategoryModmailThread:
		return "modmail_thread"
	case CategoryGeneric:
		return "generic"
	default:
		return "none"
	}
}

// SuppressReason explains why a message was dropped before classification.
type SuppressReason string

const (
	NotSuppressed     SuppressReason = ""
	SuppressedWebhook SuppressReason = "webhook"
	SuppressedSelf    SuppressReason = "self"
	SuppressedKind    SuppressReason = "message_kind"
)

// Decision is the outcome of classifying one message.
type Decision struct {
	Category   Category
	Fallback   bool // command dispatcher runs after the category handler
	Suppressed SuppressReason
}

// Handlers returns the categories whose handlers run for this decision, in order.
func (d Decision) Handlers() []Category {
	switch {
	case d.Suppressed != NotSuppressed:
		return nil
	case d.Category == CategoryGeneric:
		return []Category{CategoryGeneric}
	case d.Fallback:
		return []Category{d.Category, CategoryGeneric}
	default:
		return []Category{d.Category}
	}
}
