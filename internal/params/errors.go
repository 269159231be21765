package params

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"mime"
	"sort"
	"strings"
)

// ErrorBody is the wire shape of an error response. Errors may be a single
// message, a list of messages, or a field→messages map.
type ErrorBody struct {
	Errors any `json:"errors"`
}

// NewErrorBody wraps a single message.
func NewErrorBody(message string) ErrorBody { return ErrorBody{Errors: message} }

// NewFieldErrors wraps a field→messages map, the 422 validation shape.
func NewFieldErrors(fields map[string][]string) ErrorBody { return ErrorBody{Errors: fields} }

// Messages flattens the errors value into a list, whatever its shape.
func (e ErrorBody) Messages() []string {
	switch errs := e.Errors.(type) {
	case nil:
		return nil
	case string:
		return []string{errs}
	case []string:
		return append([]string{}, errs...)
	case []any:
		out := make([]string, 0, len(errs))
		for _, m := range errs {
			out = append(out, fmt.Sprintf("%v", m))
		}
		return out
	case map[string][]string:
		return flattenFields(errs)
	case map[string]any:
		fields := make(map[string][]string, len(errs))
		for field, msgs := range errs {
			switch m := msgs.(type) {
			case []any:
				for _, msg := range m {
					fields[field] = append(fields[field], fmt.Sprintf("%v", msg))
				}
			default:
				fields[field] = []string{fmt.Sprintf("%v", m)}
			}
		}
		return flattenFields(fields)
	default:
		return []string{fmt.Sprintf("%v", errs)}
	}
}

// Fields returns the field→messages map when the body carries one.
func (e ErrorBody) Fields() map[string][]string {
	switch errs := e.Errors.(type) {
	case map[string][]string:
		return errs
	case map[string]any:
		fields := make(map[string][]string, len(errs))
		for field, msgs := range errs {
			switch m := msgs.(type) {
			case []any:
				for _, msg := range m {
					fields[field] = append(fields[field], fmt.Sprintf("%v", msg))
				}
			default:
				fields[field] = []string{fmt.Sprintf("%v", m)}
			}
		}
		return fields
	default:
		return nil
	}
}

func flattenFields(fields map[string][]string) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		for _, msg := range fields[name] {
			out = append(out, fmt.Sprintf("%s %s", name, msg))
		}
	}
	return out
}

// xmlErrors matches <errors><error>…</error></errors>.
type xmlErrors struct {
	XMLName xml.Name `xml:"errors"`
	Errors  []string `xml:"error"`
}

// DecodeErrorMessages parses an error response body into a flat message
// list based on its content type. Unknown content types yield no messages
// rather than a parse failure.
func DecodeErrorMessages(contentType string, body []byte) []string {
	if len(body) == 0 {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	subtype := mediaType
	if i := strings.Index(mediaType, "/"); i >= 0 {
		subtype = mediaType[i+1:]
	}

	switch subtype {
	case "json":
		var parsed ErrorBody
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil
		}
		return parsed.Messages()
	case "xml":
		var parsed xmlErrors
		if err := xml.Unmarshal(body, &parsed); err != nil {
			return nil
		}
		return parsed.Errors
	default:
		return nil
	}
}
