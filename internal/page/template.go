package page

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"sync"

	"github.com/dmorgan81/textimage/internal/controller"
	"github.com/dmorgan81/textimage/internal/log"
	"github.com/samber/do"
)

//go:embed assets/index.html
var indexTmpl string

type Params struct {
	Prompt       string
	Loading      bool
	Image        template.URL
	ModalVisible bool
	Notice       string
	NoticeKind   string
	DownloadName string
}

// FromState projects controller state onto the page. The notice is passed
// separately because rendering consumes it.
func FromState(s controller.State, notice *controller.Notice) Params {
	p := Params{
		Prompt:       s.Prompt,
		Loading:      s.Loading,
		ModalVisible: s.ModalVisible && s.Image != nil,
		DownloadName: controller.DownloadName,
	}
	if s.Image != nil {
		// data: URLs are dropped by html/template unless marked safe; the
		// content comes from our own base64 encoding.
		p.Image = template.URL(s.Image.DataURL())
	}
	if notice != nil {
		p.Notice = notice.Message
		p.NoticeKind = notice.Kind.String()
	}
	return p
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(*do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("index").Parse(indexTmpl))
	})

	log.FromContextOrDiscard(ctx).WithGroup("templator").Debug("generating page")

	var data bytes.Buffer
	if err := g.tmpl.Execute(&data, params); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
