// internal/workers/deployment/prepare-specs/render.go
package preparespecs

import (
	"os"
	"path/filepath"
	"strings"

	"pipeline-workers/internal/common/errors"
	"pipeline-workers/internal/common/jsonorder"

	"gopkg.in/yaml.v3"
)

// Render replaces every "{name}" in template with the text of parameter
// name. All tokens are replaced in a single left-to-right scan, so text coming
// from a parameter value is never substituted again. When two tokens start
// at the same position the parameter listed first wins.
func Render(template string, params jsonorder.Object) string {
	if len(params) == 0 {
		return template
	}

	oldnew := make([]string, 0, 2*len(params))
	for _, p := range params {
		oldnew = append(oldnew, "{"+p.Key+"}", jsonorder.Text(p.Value))
	}
	return strings.NewReplacer(oldnew...).Replace(template)
}

// LoadTemplate reads a template bundled with the function.
func LoadTemplate(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.NewFileAccessError(path, err)
	}
	return string(data), nil
}

// checkYAML rejects a rendered appspec that no longer parses, typically
// because a parameter value broke the document structure.
func checkYAML(name, doc string) error {
	var v interface{}
	if err := yaml.Unmarshal([]byte(doc), &v); err != nil {
		return errors.NewConfigurationError("Error loading "+name, err)
	}
	return nil
}
