package llms

import (
	"encoding/base64"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// JSON forms follow the OpenAI message schema.

// MessageJSON is the compact JSON form of a Message with a single text part.
type MessageJSON struct {
	Role Role   `json:"role"`
	Text string `json:"text,omitempty"`
}

// ContentPartJSON is the polymorphic JSON form of a content part.
type ContentPartJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ImageURL     *ImageURLJSON     `json:"image_url,omitempty"`
	Binary       *BinaryJSON       `json:"binary,omitempty"`
	ToolCall     *ToolCallJSON     `json:"tool_call,omitempty"`
	ToolResponse *ToolResponseJSON `json:"tool_response,omitempty"`
}

// ImageURLJSON is the JSON form of image URL content.
type ImageURLJSON struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// BinaryJSON is the JSON form of binary content, with base64 data.
type BinaryJSON struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

// ToolCallJSON is the JSON form of a tool call.
type ToolCallJSON struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	FunctionCall *FunctionCall `json:"function"`
}

// ToolResponseJSON is the JSON form of a tool response.
type ToolResponseJSON struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

// MarshalJSON implements json.Marshaler for Message.
func (m Message) MarshalJSON() ([]byte, error) {
	// Single text part collapses to the compact form.
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok {
			return json.Marshal(MessageJSON{
				Role: m.Role,
				Text: tp.Text,
			})
		}
	}

	return json.Marshal(struct {
		Role  Role          `json:"role"`
		Parts []ContentPart `json:"parts"`
	}{
		Role:  m.Role,
		Parts: m.Parts,
	})
}

// UnmarshalJSON implements json.Unmarshaler for Message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var msgJSON MessageJSON
	if err := json.Unmarshal(data, &msgJSON); err != nil {
		return err
	}

	m.Role = msgJSON.Role

	if msgJSON.Text != "" {
		m.Parts = []ContentPart{TextContent{Text: msgJSON.Text}}
		return nil
	}

	// Parts are polymorphic and need manual decoding.
	var rawMsg map[string]any
	if err := json.Unmarshal(data, &rawMsg); err != nil {
		return err
	}

	if partsRaw, ok := rawMsg["parts"]; ok {
		partsArray, ok := partsRaw.([]any)
		if !ok {
			return errors.New("parts field must be an array")
		}

		for _, partRaw := range partsArray {
			partData, err := json.Marshal(partRaw)
			if err != nil {
				return err
			}

			var partJSON ContentPartJSON
			if err := json.Unmarshal(partData, &partJSON); err != nil {
				return err
			}

			part, err := unmarshalContentPart(partJSON)
			if err != nil {
				return err
			}
			m.Parts = append(m.Parts, part)
		}
	}

	return nil
}

func unmarshalContentPart(partJSON ContentPartJSON) (ContentPart, error) {
	switch partJSON.Type {
	case "text", "":
		return TextContent{Text: partJSON.Text}, nil
	case "image_url":
		if partJSON.ImageURL == nil {
			return nil, errors.New("image_url field is required for image_url type")
		}
		return ImageURLContent{
			URL:    partJSON.ImageURL.URL,
			Detail: partJSON.ImageURL.Detail,
		}, nil
	case "binary":
		if partJSON.Binary == nil {
			return nil, errors.New("binary field is required for binary type")
		}
		decoded, err := base64.StdEncoding.DecodeString(partJSON.Binary.Data)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode binary data")
		}
		return BinaryContent{
			MIMEType: partJSON.Binary.MIMEType,
			Data:     decoded,
		}, nil
	case "tool_call":
		if partJSON.ToolCall == nil {
			return nil, errors.New("tool_call field is required for tool_call type")
		}
		return ToolCall{
			ID:           partJSON.ToolCall.ID,
			Type:         partJSON.ToolCall.Type,
			FunctionCall: partJSON.ToolCall.FunctionCall,
		}, nil
	case "tool_response":
		if partJSON.ToolResponse == nil {
			return nil, errors.New("tool_response field is required for tool_response type")
		}
		return ToolCallResponse{
			ToolCallID: partJSON.ToolResponse.ToolCallID,
			Name:       partJSON.ToolResponse.Name,
			Content:    partJSON.ToolResponse.Content,
		}, nil
	default:
		return nil, errors.Newf("unknown content type: '%s'", partJSON.Type)
	}
}

// MarshalJSON implements json.Marshaler for TextContent.
func (tc TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text string `json:"text"`
		Type string `json:"type"`
	}{
		Text: tc.Text,
		Type: "text",
	})
}

// UnmarshalJSON implements json.Unmarshaler for TextContent.
func (tc *TextContent) UnmarshalJSON(data []byte) error {
	var textJSON ContentPartJSON
	if err := json.Unmarshal(data, &textJSON); err != nil {
		return err
	}
	if textJSON.Type != "text" {
		return errors.Newf("invalid type for TextContent: %v", textJSON.Type)
	}
	tc.Text = textJSON.Text
	return nil
}

// MarshalJSON implements json.Marshaler for ImageURLContent.
func (iuc ImageURLContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string       `json:"type"`
		ImageURL ImageURLJSON `json:"image_url"`
	}{
		Type: "image_url",
		ImageURL: ImageURLJSON{
			URL:    iuc.URL,
			Detail: iuc.Detail,
		},
	})
}

// UnmarshalJSON implements json.Unmarshaler for ImageURLContent.
func (iuc *ImageURLContent) UnmarshalJSON(data []byte) error {
	var imageJSON ContentPartJSON
	if err := json.Unmarshal(data, &imageJSON); err != nil {
		return err
	}
	if imageJSON.Type != "image_url" {
		return errors.Newf("invalid type for ImageURLContent: %v", imageJSON.Type)
	}
	if imageJSON.ImageURL == nil || imageJSON.ImageURL.URL == "" {
		return errors.New("missing url field in ImageURLContent")
	}
	iuc.URL = imageJSON.ImageURL.URL
	iuc.Detail = imageJSON.ImageURL.Detail
	return nil
}

// MarshalJSON implements json.Marshaler for BinaryContent.
func (bc BinaryContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string     `json:"type"`
		Binary BinaryJSON `json:"binary"`
	}{
		Type: "binary",
		Binary: BinaryJSON{
			MIMEType: bc.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(bc.Data),
		},
	})
}

// UnmarshalJSON implements json.Unmarshaler for BinaryContent.
func (bc *BinaryContent) UnmarshalJSON(data []byte) error {
	var binaryJSON ContentPartJSON
	if err := json.Unmarshal(data, &binaryJSON); err != nil {
		return err
	}
	if binaryJSON.Type != "binary" {
		return errors.Newf("invalid type for BinaryContent: %v", binaryJSON.Type)
	}
	if binaryJSON.Binary == nil || binaryJSON.Binary.Data == "" {
		return errors.New("missing data field in BinaryContent")
	}
	if binaryJSON.Binary.MIMEType == "" {
		return errors.New("missing mime_type field in BinaryContent")
	}
	decoded, err := base64.StdEncoding.DecodeString(binaryJSON.Binary.Data)
	if err != nil {
		return errors.Wrap(err, "error decoding base64 data")
	}
	bc.MIMEType = binaryJSON.Binary.MIMEType
	bc.Data = decoded
	return nil
}

// toolCallJSONOrdered fixes the marshaled field order: function, id, type.
type toolCallJSONOrdered struct {
	FunctionCall *FunctionCall `json:"function"`
	ID           string        `json:"id"`
	Type         string        `json:"type"`
}

// MarshalJSON implements json.Marshaler for ToolCall.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string              `json:"type"`
		ToolCall toolCallJSONOrdered `json:"tool_call"`
	}{
		Type: "tool_call",
		ToolCall: toolCallJSONOrdered{
			FunctionCall: tc.FunctionCall,
			ID:           tc.ID,
			Type:         tc.Type,
		},
	})
}

// UnmarshalJSON implements json.Unmarshaler for ToolCall.
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var rawMsg map[string]any
	if err := json.Unmarshal(data, &rawMsg); err != nil {
		return err
	}

	if rawType, ok := rawMsg["type"].(string); !ok || rawType != "tool_call" {
		return errors.Newf("invalid type for ToolCall: %v", rawMsg["type"])
	}

	toolCallRaw, ok := rawMsg["tool_call"].(map[string]any)
	if !ok {
		return errors.New("invalid tool_call field in ToolCall")
	}

	id, ok := toolCallRaw["id"].(string)
	if !ok || id == "" {
		return errors.New("missing id field in ToolCall")
	}

	typ, ok := toolCallRaw["type"].(string)
	if !ok || typ == "" {
		return errors.New("missing type field in ToolCall")
	}

	// A missing or malformed function field decodes to an empty struct.
	functionCall := &FunctionCall{}
	if functionRaw, exists := toolCallRaw["function"]; exists {
		if functionMap, ok := functionRaw.(map[string]any); ok {
			name, _ := functionMap["name"].(string)
			arguments, _ := functionMap["arguments"].(string)
			functionCall = &FunctionCall{
				Name:      name,
				Arguments: arguments,
			}
		}
	}

	tc.ID = id
	tc.Type = typ
	tc.FunctionCall = functionCall
	return nil
}

// MarshalJSON implements json.Marshaler for ToolCallResponse.
func (tc ToolCallResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string           `json:"type"`
		ToolResponse ToolResponseJSON `json:"tool_response"`
	}{
		Type: "tool_response",
		ToolResponse: ToolResponseJSON{
			ToolCallID: tc.ToolCallID,
			Name:       tc.Name,
			Content:    tc.Content,
		},
	})
}

// UnmarshalJSON implements json.Unmarshaler for ToolCallResponse.
func (tc *ToolCallResponse) UnmarshalJSON(data []byte) error {
	var respJSON ContentPartJSON
	if err := json.Unmarshal(data, &respJSON); err != nil {
		return err
	}
	if respJSON.Type != "tool_response" {
		return errors.Newf("invalid type for ToolCallResponse: %v", respJSON.Type)
	}
	if respJSON.ToolResponse == nil || respJSON.ToolResponse.ToolCallID == "" {
		return errors.New("missing tool_call_id field in ToolCallResponse")
	}
	if respJSON.ToolResponse.Name == "" {
		return errors.New("missing name field in ToolCallResponse")
	}
	if respJSON.ToolResponse.Content == "" {
		return errors.New("missing content field in ToolCallResponse")
	}
	tc.ToolCallID = respJSON.ToolResponse.ToolCallID
	tc.Name = respJSON.ToolResponse.Name
	tc.Content = respJSON.ToolResponse.Content
	return nil
}
