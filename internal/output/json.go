package output

import (
	"encoding/json"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/letter"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatBatch renders a batch result as JSON.
func (f *JSONFormatter) FormatBatch(result *core.BatchResult) (string, error) {
	if result == nil {
		return "", nil
	}
	return f.marshal(result)
}

func (f *JSONFormatter) FormatTemplates(templates []core.Template) (string, error) {
	if templates == nil {
		templates = []core.Template{}
	}
	return f.marshal(templates)
}

func (f *JSONFormatter) FormatPreview(preview letter.PreviewResult) (string, error) {
	return f.marshal(preview)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
