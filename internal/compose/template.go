package compose

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTemplate is returned for unbalanced or empty braces.
var ErrMalformedTemplate = errors.New("malformed template")

// MissingVariableError reports a placeholder with no resolved value.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing variable {%s}", e.Name)
}

// Format replaces every {name} placeholder in template with vars[name].
// "{{" and "}}" produce literal braces. The first placeholder without a value
// yields a *MissingVariableError.
func Format(template string, vars map[string]string) (string, error) {
	var out strings.Builder

	out.Grow(len(template))

	for i := 0; i < len(template); {
		switch template[i] {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				out.WriteByte('{')

				i += 2

				continue
			}

			name, width, err := placeholderAt(template, i)
			if err != nil {
				return "", err
			}

			value, ok := vars[name]
			if !ok {
				return "", &MissingVariableError{Name: name}
			}

			out.WriteString(value)

			i += width
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				out.WriteByte('}')

				i += 2

				continue
			}

			return "", fmt.Errorf("%w: single '}' at offset %d", ErrMalformedTemplate, i)
		default:
			out.WriteByte(template[i])

			i++
		}
	}

	return out.String(), nil
}

// Placeholders lists the distinct placeholder names referenced by template,
// in order of first appearance.
func Placeholders(template string) ([]string, error) {
	var names []string

	seen := make(map[string]struct{})

	for i := 0; i < len(template); i++ {
		switch template[i] {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				i++

				continue
			}

			name, width, err := placeholderAt(template, i)
			if err != nil {
				return nil, err
			}

			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}

			i += width - 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				i++

				continue
			}

			return nil, fmt.Errorf("%w: single '}' at offset %d", ErrMalformedTemplate, i)
		}
	}

	return names, nil
}

// placeholderAt parses the placeholder opening at template[start] and returns
// its name and its width including both braces.
func placeholderAt(template string, start int) (string, int, error) {
	end := strings.IndexByte(template[start+1:], '}')
	if end < 0 {
		return "", 0, fmt.Errorf("%w: unclosed '{' at offset %d", ErrMalformedTemplate, start)
	}

	raw := template[start+1 : start+1+end]
	if strings.ContainsRune(raw, '{') {
		return "", 0, fmt.Errorf("%w: nested '{' at offset %d", ErrMalformedTemplate, start)
	}

	name := strings.TrimSpace(raw)
	if name == "" {
		return "", 0, fmt.Errorf("%w: empty placeholder at offset %d", ErrMalformedTemplate, start)
	}

	return name, end + 2, nil
}
