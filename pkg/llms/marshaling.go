package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Part type discriminators used in the JSON form of a Message.
const (
	PartTypeText         = "text"
	PartTypeToolCall     = "tool_call"
	PartTypeToolResponse = "tool_response"
)

// ContentPartJSON represents the JSON structure for content parts
type ContentPartJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *ToolCall         `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

type messageJSON struct {
	Role  Role              `json:"role"`
	Parts []ContentPartJSON `json:"parts"`
	Usage *Usage            `json:"usage,omitempty"`
}

// MarshalJSON implements json.Marshaler for Message
func (m Message) MarshalJSON() ([]byte, error) {
	js := messageJSON{
		Role:  m.Role,
		Parts: make([]ContentPartJSON, 0, len(m.Parts)),
		Usage: m.Usage,
	}
	for _, part := range m.Parts {
		pj, err := marshalContentPart(part)
		if err != nil {
			return nil, err
		}
		js.Parts = append(js.Parts, pj)
	}
	return json.Marshal(js)
}

// UnmarshalJSON implements json.Unmarshaler for Message
func (m *Message) UnmarshalJSON(data []byte) error {
	var js messageJSON
	if err := json.Unmarshal(data, &js); err != nil {
		return err
	}

	m.Role = js.Role
	m.Usage = js.Usage
	m.Parts = make([]ContentPart, 0, len(js.Parts))
	for _, pj := range js.Parts {
		part, err := unmarshalContentPart(pj)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

func marshalContentPart(part ContentPart) (ContentPartJSON, error) {
	switch p := part.(type) {
	case TextContent:
		return ContentPartJSON{Type: PartTypeText, Text: p.Text}, nil
	case ToolCall:
		return ContentPartJSON{Type: PartTypeToolCall, ToolCall: &p}, nil
	case ToolCallResponse:
		return ContentPartJSON{Type: PartTypeToolResponse, ToolResponse: &p}, nil
	default:
		return ContentPartJSON{}, errors.Errorf("unsupported content part type: %T", part)
	}
}

// unmarshalContentPart converts ContentPartJSON to ContentPart
func unmarshalContentPart(pj ContentPartJSON) (ContentPart, error) {
	switch pj.Type {
	case PartTypeText, "":
		return TextContent{Text: pj.Text}, nil
	case PartTypeToolCall:
		if pj.ToolCall == nil {
			return nil, errors.New("tool_call field is required for tool_call type")
		}
		return *pj.ToolCall, nil
	case PartTypeToolResponse:
		if pj.ToolResponse == nil {
			return nil, errors.New("tool_response field is required for tool_response type")
		}
		return *pj.ToolResponse, nil
	default:
		return nil, errors.Errorf("unknown content part type: %s", pj.Type)
	}
}
