package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type Part struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ImagePart(url string) Part {
	return Part{Type: PartImageURL, ImageURL: &ImageURL{URL: url, Detail: "high"}}
}

// Content is either plain text or an ordered list of parts. On the wire it
// is a JSON string or a JSON array, matching the chat-completions format.
type Content struct {
	Text  string
	Parts []Part
}

func Text(s string) Content {
	return Content{Text: s}
}

func Multipart(parts ...Part) Content {
	return Content{Parts: parts}
}

func (c Content) IsMultipart() bool {
	return len(c.Parts) > 0
}

// PlainText returns the text content, concatenating text parts and skipping
// images.
func (c Content) PlainText() string {
	if !c.IsMultipart() {
		return c.Text
	}
	texts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "")
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMultipart() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*c = Content{}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case trimmed[0] == '[':
		var parts []Part
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		for i, p := range parts {
			switch p.Type {
			case PartText:
			case PartImageURL:
				if p.ImageURL == nil || strings.TrimSpace(p.ImageURL.URL) == "" {
					return fmt.Errorf("content part %d: image_url requires a url", i)
				}
			default:
				return fmt.Errorf("content part %d: unsupported type %q", i, p.Type)
			}
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

func UserMessage(content Content) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: Text(text)}
}
