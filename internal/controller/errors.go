package controller

import (
	"errors"

	"github.com/dmorgan81/textimage/internal/image"
)

var (
	ErrEmptyPrompt = errors.New("please enter a valid prompt")
	ErrBusy        = errors.New("an image is already being generated")
)

type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindBusy
	KindTransport
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindBusy:
		return "busy"
	case KindTransport:
		return "transport"
	default:
		return "unexpected"
	}
}

// Classify maps an error returned by Generate onto the failure taxonomy.
func Classify(err error) Kind {
	var terr *image.TransportError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrEmptyPrompt):
		return KindValidation
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.As(err, &terr):
		return KindTransport
	default:
		return KindUnexpected
	}
}

// Notice is a message meant for the user, produced by a failed operation.
type Notice struct {
	Kind    Kind
	Message string
}

const unknownErrorMessage = "An unknown error occurred."

func noticeFor(err error) *Notice {
	kind := Classify(err)
	switch kind {
	case KindValidation:
		return &Notice{Kind: kind, Message: "Please enter a valid prompt!"}
	case KindBusy:
		return &Notice{Kind: kind, Message: "An image is already being generated."}
	}
	msg := err.Error()
	if msg == "" {
		msg = unknownErrorMessage
	}
	return &Notice{Kind: kind, Message: "Error: " + msg}
}
