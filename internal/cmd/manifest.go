package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/engine"
)

// batchManifest is the YAML form of a batch run.
//
//	template_id: tpl-late-payment
//	config:
//	  priority: high
//	  reason: Not my account
//	  due_date: 2024-07-01T00:00:00Z
//	selections:
//	  - client_id: c-100
//	    items:
//	      - item_id: i-1
//	        account_number: "****1234"
//	        bureau: experian
type batchManifest struct {
	TemplateID string                 `yaml:"template_id"`
	Config     core.DisputeConfig     `yaml:"config"`
	Selections []core.ClientSelection `yaml:"selections"`
}

// importFile holds templates and clients to load into the store. Either list
// may be empty.
type importFile struct {
	Templates []core.Template      `yaml:"templates"`
	Clients   []core.ClientContext `yaml:"clients"`
}

func readBatchManifest(path string) (engine.StartRequest, error) {
	f, err := openInput(path)
	if err != nil {
		return engine.StartRequest{}, err
	}
	defer f.Close() // nolint:errcheck // read-only file
	return decodeBatchManifest(f)
}

func decodeBatchManifest(r io.Reader) (engine.StartRequest, error) {
	var manifest batchManifest
	if err := decodeStrict(r, &manifest); err != nil {
		return engine.StartRequest{}, fmt.Errorf("parse batch manifest: %w", err)
	}
	if strings.TrimSpace(manifest.TemplateID) == "" {
		return engine.StartRequest{}, &core.ValidationRejectedError{Field: "template_id", Reason: "template_id is required"}
	}
	if len(manifest.Selections) == 0 {
		return engine.StartRequest{}, &core.ValidationRejectedError{Field: "selections", Reason: "manifest selects no clients"}
	}

	for i, b := range manifest.Config.Bureaus {
		normalized := core.NormalizeBureau(string(b))
		if !normalized.Known() {
			return engine.StartRequest{}, &core.ValidationRejectedError{Field: "config.bureaus", Reason: fmt.Sprintf("unknown bureau %q", b)}
		}
		manifest.Config.Bureaus[i] = normalized
	}

	return engine.StartRequest{
		TemplateID: strings.TrimSpace(manifest.TemplateID),
		Selections: manifest.Selections,
		Config:     manifest.Config,
	}, nil
}

func readImportFile(path string) (importFile, error) {
	f, err := openInput(path)
	if err != nil {
		return importFile{}, err
	}
	defer f.Close() // nolint:errcheck // read-only file

	var data importFile
	if err := decodeStrict(f, &data); err != nil {
		return importFile{}, fmt.Errorf("parse import file: %w", err)
	}
	return data, nil
}

// openInput opens path, treating "-" as stdin.
func openInput(path string) (io.ReadCloser, error) {
	if strings.TrimSpace(path) == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &core.NotFoundError{Kind: "file", ID: path}
		}
		return nil, err
	}
	return f, nil
}

func decodeStrict(r io.Reader, dest any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("file is empty")
		}
		return err
	}
	return nil
}
