package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dmorgan81/textimage/internal/image"
	"github.com/dmorgan81/textimage/internal/log"
	"github.com/dmorgan81/textimage/internal/store"
	"github.com/samber/do"
)

// DownloadName is the file name every download is saved under.
const DownloadName = "generated_image.png"

type State struct {
	Prompt       string
	Loading      bool
	Image        *image.Image
	ModalVisible bool
	Notice       *Notice
}

// Controller owns the state of one session. All methods are safe for
// concurrent use; at most one Generate runs at a time.
type Controller struct {
	generator image.Generator
	uploader  store.Uploader

	mu    sync.Mutex
	state State
}

func New(generator image.Generator, uploader store.Uploader) *Controller {
	return &Controller{generator: generator, uploader: uploader}
}

// Factory builds a fresh controller per session.
type Factory func() *Controller

func NewFactory(i *do.Injector) (Factory, error) {
	generator := do.MustInvoke[image.Generator](i)
	uploader := do.MustInvoke[store.Uploader](i)
	return func() *Controller {
		return New(generator, uploader)
	}, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TakeNotice returns the pending notice, if any, and clears it.
func (c *Controller) TakeNotice() *Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.state.Notice
	c.state.Notice = nil
	return n
}

// TakeState returns the state and the pending notice in one step, clearing
// the notice.
func (c *Controller) TakeState() (State, *Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, n := c.state, c.state.Notice
	c.state.Notice = nil
	return st, n
}

func (c *Controller) UpdatePrompt(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Prompt = text
}

func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	prompt := c.state.Prompt
	if strings.TrimSpace(prompt) == "" {
		c.state.Notice = noticeFor(ErrEmptyPrompt)
		c.mu.Unlock()
		return ErrEmptyPrompt
	}
	if c.state.Loading {
		c.state.Notice = noticeFor(ErrBusy)
		c.mu.Unlock()
		return ErrBusy
	}
	c.state.Loading = true
	c.state.Image = nil
	c.state.ModalVisible = false
	c.state.Notice = nil
	c.mu.Unlock()

	log := log.FromContextOrDiscard(ctx).WithGroup("controller").With("prompt", prompt)
	log.Info("generating image")

	img, err := c.generator.Generate(ctx, image.Params{Inputs: prompt})
	if err == nil && img == nil {
		err = &image.MalformedError{Reason: "no image returned"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Loading = false
	if err != nil {
		log.Error("image generation failed", "error", err, "kind", Classify(err).String())
		c.state.Notice = noticeFor(err)
		return fmt.Errorf("generate %q: %w", prompt, err)
	}

	log.Info("image generated", "bytes", img.Size(), "content-type", img.ContentType)
	c.state.Image = img
	c.state.ModalVisible = true
	return nil
}

func (c *Controller) DismissModal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ModalVisible = false
}

// DownloadCurrentImage saves the current image through the configured
// uploader. It reports false without error when there is nothing to save.
func (c *Controller) DownloadCurrentImage(ctx context.Context) (bool, error) {
	return c.Download(ctx, c.uploader)
}

// Download saves the current image through dst.
func (c *Controller) Download(ctx context.Context, dst store.Uploader) (bool, error) {
	c.mu.Lock()
	img, prompt := c.state.Image, c.state.Prompt
	c.mu.Unlock()

	if img == nil {
		return false, nil
	}

	log.FromContextOrDiscard(ctx).WithGroup("controller").Info("downloading image", "name", DownloadName)
	err := dst.Upload(ctx, store.UploadParams{
		Name:        DownloadName,
		Data:        img.Data,
		ContentType: img.ContentType,
		Metadata:    map[string]string{"prompt": prompt},
	})
	if err != nil {
		return false, fmt.Errorf("download %s: %w", DownloadName, err)
	}
	return true, nil
}
