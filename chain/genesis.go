package chain

import (
	"strconv"
	"strings"

	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/tidwall/sjson"
)

// Override sets Value at Path in genesis.json. Path elements are object keys (string)
// or array indices (int).
type Override struct {
	Path  []any `json:"path" yaml:"path"`
	Value any   `json:"value" yaml:"value"`
}

func NewOverride(value any, path ...any) Override {
	return Override{Path: path, Value: value}
}

func (o Override) Validate() error {
	_, err := o.sjsonPath()

	return err
}

func (o Override) String() string {
	p, err := o.sjsonPath()
	if err != nil {
		return "<invalid override>"
	}

	return p
}

func (o Override) sjsonPath() (string, error) {
	if len(o.Path) == 0 {
		return "", errors.NewInvalidArgumentError("override has an empty path")
	}

	parts := make([]string, 0, len(o.Path))

	for _, p := range o.Path {
		switch v := p.(type) {
		case string:
			if v == "" {
				return "", errors.NewInvalidArgumentError("override path %v has an empty key", o.Path)
			}

			parts = append(parts, escapeKey(v))
		case int:
			if v < 0 {
				return "", errors.NewInvalidArgumentError("override path %v has a negative index", o.Path)
			}

			parts = append(parts, strconv.Itoa(v))
		case int64:
			if v < 0 {
				return "", errors.NewInvalidArgumentError("override path %v has a negative index", o.Path)
			}

			parts = append(parts, strconv.FormatInt(v, 10))
		case uint64:
			parts = append(parts, strconv.FormatUint(v, 10))
		case float64:
			// yaml and json decoders produce float64 for indices
			if v < 0 || v != float64(int(v)) {
				return "", errors.NewInvalidArgumentError("override path %v has a non integer index %v", o.Path, v)
			}

			parts = append(parts, strconv.Itoa(int(v)))
		default:
			return "", errors.NewInvalidArgumentError("override path %v has an element of type %T", o.Path, p)
		}
	}

	return strings.Join(parts, "."), nil
}

var sjsonEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
	`:`, `\:`,
)

func escapeKey(k string) string {
	return sjsonEscaper.Replace(k)
}

// ApplyOverrides sets every override in doc, in order, and returns the new document.
func ApplyOverrides(doc []byte, overrides ...Override) ([]byte, error) {
	var err error

	for _, o := range overrides {
		var path string

		if path, err = o.sjsonPath(); err != nil {
			return nil, err
		}

		if doc, err = sjson.SetBytes(doc, path, o.Value); err != nil {
			return nil, errors.NewProcessingError("failed to apply genesis override %s", path, err)
		}
	}

	return doc, nil
}
