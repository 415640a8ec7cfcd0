package domain

// NoticeKind classifies the outcome of a viewer action.
type NoticeKind string

const (
	NoticeNone         NoticeKind = ""
	NoticeLiked        NoticeKind = "liked"
	NoticeAlreadyLiked NoticeKind = "already_liked"
	NoticeUnliked      NoticeKind = "unliked"
	NoticeNotLiked     NoticeKind = "not_liked"
	NoticeDismissed    NoticeKind = "dismissed"
	NoticeExhausted    NoticeKind = "exhausted"
	NoticeLoaded       NoticeKind = "loaded"
	NoticeListingGone  NoticeKind = "listing_gone"
	NoticeSent         NoticeKind = "sent"
	NoticeOffline      NoticeKind = "offline"
	NoticeNoSession    NoticeKind = "no_session"
	NoticeError        NoticeKind = "error"
)

// Notice is what the viewer is told about an action. It replaces error
// propagation for sync failures: the caller always gets a value back.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message,omitempty"`

	// Err holds the underlying failure, if any. It is never serialized.
	Err error `json:"-"`
}

// IsError reports whether the notice should be shown as an error rather
// than as information.
func (n Notice) IsError() bool {
	switch n.Kind {
	case NoticeListingGone, NoticeError:
		return true
	default:
		return false
	}
}

func notice(kind NoticeKind, message string) Notice {
	return Notice{Kind: kind, Message: message}
}

func failure(kind NoticeKind, message string, err error) Notice {
	return Notice{Kind: kind, Message: message, Err: err}
}
