package notify

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/narvanalabs/locum/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

type copySpec struct {
	Title   string `yaml:"title"`
	Message string `yaml:"message"`
	Link    string `yaml:"link"`
	Email   string `yaml:"email"`
}

type copyTemplates struct {
	title   *template.Template
	message *template.Template
	link    *template.Template
	email   *template.Template // nil when the email body is derived from the message
}

// rendered is the copy for one notification.
type rendered struct {
	Title     string
	Message   string
	Link      string
	EmailBody string
}

// loadCopy parses the embedded copy file and checks every notification type has an entry.
func loadCopy(raw []byte) (map[models.NotificationType]*copyTemplates, error) {
	var specs map[string]copySpec
	if err := yaml.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parsing notification templates: %w", err)
	}

	out := make(map[models.NotificationType]*copyTemplates, len(specs))
	for name, spec := range specs {
		typ := models.NotificationType(name)
		if !typ.IsValid() {
			return nil, fmt.Errorf("unknown notification type %q in templates", name)
		}
		ct := &copyTemplates{}
		var err error
		if ct.title, err = parse(name+".title", spec.Title); err != nil {
			return nil, err
		}
		if ct.message, err = parse(name+".message", spec.Message); err != nil {
			return nil, err
		}
		if ct.link, err = parse(name+".link", spec.Link); err != nil {
			return nil, err
		}
		if spec.Email != "" {
			if ct.email, err = parse(name+".email", spec.Email); err != nil {
				return nil, err
			}
		}
		out[typ] = ct
	}

	for _, typ := range models.ValidNotificationTypes() {
		if _, ok := out[typ]; !ok {
			return nil, fmt.Errorf("missing template for notification type %q", typ)
		}
	}
	return out, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", name, err)
	}
	return t, nil
}

func execute(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", t.Name(), err)
	}
	return b.String(), nil
}

func (ct *copyTemplates) render(data templateData) (*rendered, error) {
	var r rendered
	var err error
	if r.Title, err = execute(ct.title, data); err != nil {
		return nil, err
	}
	if r.Message, err = execute(ct.message, data); err != nil {
		return nil, err
	}
	if r.Link, err = execute(ct.link, data); err != nil {
		return nil, err
	}
	if ct.email != nil {
		if r.EmailBody, err = execute(ct.email, data); err != nil {
			return nil, err
		}
	} else {
		r.EmailBody = r.Message + "\n\n" + data.BaseURL + r.Link + "\n"
	}
	return &r, nil
}
