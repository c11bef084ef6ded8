package types

import "strings"

// Part is one element of a multimodal model request. The set of variants is
// closed: TextPart and BinaryPart. Parts are validated when constructed, not
// when consumed.
type Part interface {
	part()
}

type TextPart struct {
	Text string
}

func (TextPart) part() {}

// BinaryPart carries inline media. Data is a reference to bytes owned by the
// channel adapter or storage; the part never copies them.
type BinaryPart struct {
	MIMEType string
	Data     []byte
}

func (BinaryPart) part() {}

func NewTextPart(text string) (Part, error) {
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "text part must not be empty"}
	}
	return TextPart{Text: text}, nil
}

func NewBinaryPart(mimeType string, data []byte) (Part, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Field: "data", Reason: "binary part must not be empty"}
	}
	if !strings.Contains(mimeType, "/") {
		return nil, &ValidationError{Field: "mime_type", Reason: "binary part requires a mime type like audio/ogg"}
	}
	return BinaryPart{MIMEType: mimeType, Data: data}, nil
}

// MustTextPart panics on invalid input. For literals in tests and wiring.
func MustTextPart(text string) Part {
	p, err := NewTextPart(text)
	if err != nil {
		panic(err)
	}
	return p
}

func MustBinaryPart(mimeType string, data []byte) Part {
	p, err := NewBinaryPart(mimeType, data)
	if err != nil {
		panic(err)
	}
	return p
}
