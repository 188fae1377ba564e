package builder

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"
)

// Template names
const (
	TemplatePythonRequirements = "python-requirements"
	TemplatePythonTransformers = "python-transformers"
)

// Params are substituted into a Dockerfile template
type Params struct {
	ArtifactFilename string
	BaseImage        string
	Port             int
	Entrypoint       []string
}

// DefaultEntrypoint starts the model server shipped inside the artifact
var DefaultEntrypoint = []string{"python3", "api.py"}

const dockerfileHead = `FROM {{ .BaseImage }}
COPY ./{{ .ArtifactFilename }} /app/
WORKDIR /app/
RUN tar -xvf {{ .ArtifactFilename }} && rm {{ .ArtifactFilename }}
EXPOSE {{ .Port }}
`

const dockerfileTail = `ENTRYPOINT [{{ range $i, $arg := .Entrypoint }}{{ if $i }}, {{ end }}{{ printf "%q" $arg }}{{ end }}]
`

var templates = map[string]*template.Template{
	TemplatePythonRequirements: template.Must(template.New(TemplatePythonRequirements).Parse(
		dockerfileHead + "RUN pip install --no-cache-dir -r requirements.txt\n" + dockerfileTail)),
	TemplatePythonTransformers: template.Must(template.New(TemplatePythonTransformers).Parse(
		dockerfileHead + "RUN pip install Flask transformers[torch]\n" + dockerfileTail)),
}

// Templates lists the available template names
func Templates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTemplate reports whether name is a known template
func HasTemplate(name string) bool {
	_, ok := templates[name]
	return ok
}

// RenderDockerfile renders the named template. Empty BaseImage, Port and
// Entrypoint fall back to python:3.7, 8080 and DefaultEntrypoint.
func RenderDockerfile(name string, p Params) ([]byte, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown dockerfile template %q", name)
	}
	if p.ArtifactFilename == "" {
		return nil, fmt.Errorf("artifact filename is required")
	}
	if p.BaseImage == "" {
		p.BaseImage = "python:3.7"
	}
	if p.Port == 0 {
		p.Port = 8080
	}
	if len(p.Entrypoint) == 0 {
		p.Entrypoint = DefaultEntrypoint
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render dockerfile: %w", err)
	}
	return buf.Bytes(), nil
}
