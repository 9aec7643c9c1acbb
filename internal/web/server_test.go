package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmorgan81/textimage/internal/controller"
	"github.com/dmorgan81/textimage/internal/image"
	"github.com/dmorgan81/textimage/internal/log"
	"github.com/dmorgan81/textimage/internal/page"
	"github.com/dmorgan81/textimage/internal/store"
	. "github.com/onsi/gomega"
)

type generatorFunc func(context.Context, image.Params) (*image.Image, error)

func (f generatorFunc) Generate(ctx context.Context, p image.Params) (*image.Image, error) {
	return f(ctx, p)
}

type recordingUploader struct {
	mu      sync.Mutex
	uploads []store.UploadParams
}

func (u *recordingUploader) Upload(_ context.Context, p store.UploadParams) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, p)
	return nil
}

func (u *recordingUploader) recorded() []store.UploadParams {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]store.UploadParams(nil), u.uploads...)
}

type harness struct {
	srv      *httptest.Server
	client   *http.Client
	server   *Server
	calls    atomic.Int32
	fail     atomic.Bool
	clock    atomic.Int64
	uploader *recordingUploader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{uploader: &recordingUploader{}}
	gen := generatorFunc(func(_ context.Context, p image.Params) (*image.Image, error) {
		h.calls.Add(1)
		if h.fail.Load() {
			return nil, &image.TransportError{StatusCode: http.StatusServiceUnavailable, Reason: "Service Unavailable"}
		}
		return &image.Image{Data: []byte("fox:" + p.Inputs), ContentType: "image/png"}, nil
	})

	h.clock.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	s := &Server{
		newController: func() *controller.Controller { return controller.New(gen, h.uploader) },
		templator:     &page.Templator{},
		logger:        log.New(io.Discard, slog.LevelInfo),
		idleTimeout:   DefaultSessionIdle,
		now:           func() time.Time { return time.Unix(0, h.clock.Load()).UTC() },
		sessions:      map[string]*session{},
	}
	h.server = s
	h.srv = httptest.NewServer(s.Routes())
	t.Cleanup(h.srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	h.client = &http.Client{Jar: jar}
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock.Add(int64(d))
}

func (h *harness) sessionCount() int {
	h.server.mu.Lock()
	defer h.server.mu.Unlock()
	return len(h.server.sessions)
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (h *harness) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.PostForm(h.srv.URL+path, form)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (h *harness) state(t *testing.T) stateResponse {
	t.Helper()
	_, body := h.get(t, "/api/state")
	var st stateResponse
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestSessionStartsOnGenerate(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t)
	u, _ := url.Parse(h.srv.URL)

	resp, body := h.get(t, "/")
	g.Expect(resp.StatusCode).To(Equal(http.StatusOK))
	g.Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/html"))
	g.Expect(body).To(ContainSubstring("AI Image Generator"))
	g.Expect(body).NotTo(ContainSubstring(`class="overlay"`))
	g.Expect(h.client.Jar.Cookies(u)).To(BeEmpty())
	g.Expect(h.sessionCount()).To(BeZero())

	h.post(t, "/generate", url.Values{"prompt": {"a red fox"}})
	g.Expect(h.client.Jar.Cookies(u)).To(ContainElement(HaveField("Name", sessionCookie)))
	g.Expect(h.sessionCount()).To(Equal(1))
}

func TestReadOnlyRoutesDoNotStartSessions(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t)

	for i := 0; i < 20; i++ {
		h.get(t, "/api/state")
		h.get(t, "/download")
		h.get(t, "/")
		h.post(t, "/dismiss", nil)
		h.post(t, "/save", nil)
	}
	g.Expect(h.sessionCount()).To(BeZero())
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t)

	h.post(t, "/generate", url.Values{"prompt": {"a red fox"}})
	g.Expect(h.sessionCount()).To(Equal(1))

	h.advance(DefaultSessionIdle / 2)
	g.Expect(h.server.sweep(context.Background())).To(BeZero())

	h.get(t, "/api/state")
	h.advance(DefaultSessionIdle - time.Second)
	g.Expect(h.server.sweep(context.Background())).To(BeZero())

	h.advance(2 * time.Second)
	g.Expect(h.server.sweep(context.Background())).To(Equal(1))
	g.Expect(h.sessionCount()).To(BeZero())

	st := h.state(t)
	g.Expect(st.HasImage).To(BeFalse())
	g.Expect(h.sessionCount()).To(BeZero())
}

func TestSweepKeepsSessionWithGenerationInFlight(t *testing.T) {
	g := NewWithT(t)

	started := make(chan struct{})
	release := make(chan struct{})
	c := controller.New(generatorFunc(func(context.Context, image.Params) (*image.Image, error) {
		close(started)
		<-release
		return &image.Image{Data: []byte("fox"), ContentType: "image/png"}, nil
	}), &recordingUploader{})
	c.UpdatePrompt("a red fox")

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Server{
		idleTimeout: DefaultSessionIdle,
		now:         func() time.Time { return now },
		sessions:    map[string]*session{"abc": {controller: c, lastSeen: now.Add(-2 * DefaultSessionIdle)}},
	}

	done := make(chan error, 1)
	go func() { done <- c.Generate(context.Background()) }()
	<-started

	g.Expect(s.sweep(context.Background())).To(BeZero())
	close(release)
	g.Expect(<-done).To(Succeed())
	g.Expect(s.sweep(context.Background())).To(Equal(1))
}

func TestGenerateBlankPrompt(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t)

	_, body := h.post(t, "/generate", url.Values{"prompt": {"   "}})
	g.Expect(body).To(ContainSubstring("Please enter a valid prompt!"))
	g.Expect(h.calls.Load()).To(BeZero())

	_, body = h.get(t, "/")
	g.Expect(body).NotTo(ContainSubstring("Please enter a valid prompt!"))
}

func TestGenerateDismissDownload(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t)

	_, body := h.post(t, "/generate", url.Values{"prompt": {"a red fox"}})
	g.Expect(h.calls.Load()).To(Equal(int32(1)))
	g.Expect(body).To(ContainSubstring(`class="overlay"`))
	g.Expect(body).To(ContainSubstring(`value="a red fox"`))

	st := h.state(t)
	g.Expect(st.HasImage).To(BeTrue())
	g.Expect(st.ModalVisible).To(BeTrue())
	g.Expect(st.Loading).To(BeFalse())

	resp, data := h.get(t, "/download")
	g.Expect(resp.StatusCode).To(Equal(http.StatusOK))
	g.Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="generated_image.png"`))
	g.Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
	g.Expect(data).To(Equal("fox:a red fox"))

	_, body = h.post(t, "/dismiss", nil)
	g.Expect(body).NotTo(ContainSubstring(`class="overlay"`))
	st = h.state(t)
	g.Expect(st.HasImage).To(BeTrue())
	g.Expect(st.ModalVisible).To(BeFalse())

	h.post(t, "/save", nil)
	uploads := h.uploader.recorded()
	g.Expect(uploads).To(HaveLen(1))
	g.Expect(uploads[0].Name).To(Equal(controller.DownloadName))
}

func TestGenerateFailureShowsNotice(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t)
	h.fail.Store(true)

	_, body := h.post(t, "/generate", url.Values{"prompt": {"a red fox"}})
	g.Expect(body).To(ContainSubstring("Error: failed to generate image: status 503: Service Unavailable"))
	g.Expect(body).NotTo(ContainSubstring(`class="overlay"`))

	st := h.state(t)
	g.Expect(st.HasImage).To(BeFalse())
	g.Expect(st.ModalVisible).To(BeFalse())
	g.Expect(st.Loading).To(BeFalse())
}

func TestDownloadWithoutImage(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t)
	h.post(t, "/generate", url.Values{"prompt": {""}})
	g.Expect(h.sessionCount()).To(Equal(1))

	resp, body := h.get(t, "/download")
	g.Expect(resp.StatusCode).To(Equal(http.StatusOK))
	g.Expect(resp.Header.Get("Content-Disposition")).To(BeEmpty())
	g.Expect(body).To(ContainSubstring("AI Image Generator"))

	h.post(t, "/save", nil)
	g.Expect(h.uploader.recorded()).To(BeEmpty())
}

func TestSessionsAreIsolated(t *testing.T) {
	g := NewWithT(t)
	h := newHarness(t)

	h.post(t, "/generate", url.Values{"prompt": {"a red fox"}})

	other := &http.Client{}
	resp, err := other.Get(h.srv.URL + "/api/state")
	g.Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var st stateResponse
	g.Expect(json.NewDecoder(resp.Body).Decode(&st)).To(Succeed())
	g.Expect(st.HasImage).To(BeFalse())
	g.Expect(strings.TrimSpace(st.Prompt)).To(BeEmpty())
}
