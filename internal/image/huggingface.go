package image

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dmorgan81/textimage/internal/log"
	"github.com/samber/do"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("huggingface-client")

// maxReasonLen bounds how much of an error body ends up in a user notice.
const maxReasonLen = 300

type HuggingFaceGenerator struct {
	Client *http.Client
	URL    string
	Key    string
}

func NewHuggingFaceGenerator(i *do.Injector) (Generator, error) {
	return &HuggingFaceGenerator{
		Client: do.MustInvoke[*http.Client](i),
		URL:    do.MustInvokeNamed[string](i, "inference_url"),
		Key:    do.MustInvokeNamed[string](i, "api_key"),
	}, nil
}

func (g *HuggingFaceGenerator) Generate(ctx context.Context, params Params) (*Image, error) {
	ctx, span := tracer.Start(ctx, "huggingface_generate")
	defer span.End()
	span.SetAttributes(attribute.String("inference.url", g.URL))

	log := log.FromContextOrDiscard(ctx).WithGroup("huggingface").With("prompt", params.Inputs)
	log.Info("generating image", "url", g.URL)

	body, err := json.Marshal(params)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.Key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &TransportError{StatusCode: resp.StatusCode, Reason: reason(data)}
		span.RecordError(err)
		return nil, err
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if contentType == "application/json" {
		err := &MalformedError{Reason: reason(data)}
		span.RecordError(err)
		return nil, err
	}
	if len(data) == 0 {
		err := &MalformedError{Reason: "empty body"}
		span.RecordError(err)
		return nil, err
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mediaType(http.DetectContentType(data))
	}

	log.Info("received image", "bytes", len(data), "content-type", contentType)
	span.SetAttributes(attribute.Int("image.size", len(data)))
	return &Image{Data: data, ContentType: contentType}, nil
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return mt
}

// reason pulls the "error" field out of a JSON error body, falling back to
// the raw text.
func reason(body []byte) string {
	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		switch v := payload.Error.(type) {
		case string:
			return truncate(v)
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			return truncate(strings.Join(parts, "; "))
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

// truncate cuts s to at most maxReasonLen bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxReasonLen {
		return s
	}
	n := maxReasonLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
