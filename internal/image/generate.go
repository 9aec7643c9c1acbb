package image

import (
	"context"
	"encoding/base64"
	"fmt"
)

type Params struct {
	Inputs string `json:"inputs"`
}

// Image is the opaque handle to a generated picture. A nil *Image is the
// empty handle.
type Image struct {
	Data        []byte
	ContentType string
}

// DataURL renders the image inline, suitable for an <img src>.
func (i *Image) DataURL() string {
	if i == nil {
		return ""
	}
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

func (i *Image) Size() int {
	if i == nil {
		return 0
	}
	return len(i.Data)
}

type Generator interface {
	Generate(context.Context, Params) (*Image, error)
}

// TransportError covers network failures and non-success statuses.
// StatusCode is zero when no response was received.
type TransportError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("failed to generate image: status %d: %s", e.StatusCode, e.Reason)
	case e.StatusCode != 0:
		return fmt.Sprintf("failed to generate image: status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("failed to generate image: %v", e.Err)
	default:
		return "failed to generate image"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedError is returned when a successful status carries something
// other than image bytes.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed inference response: " + e.Reason
}
