package ocr

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"github.com/susu3304/recibot/internal/receipt"
)

const prompt = "Прочитай позиции на фотографии чека. Выведи каждую позицию " +
	"отдельной строкой в формате: название количество сумма. Без заголовков " +
	"и итогов, только строки позиций."

type Client struct {
	client *openai.Client
}

func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	return &Client{
		client: openai.NewClient(apiKey),
	}
}

// Enabled reports whether the OCR backend is configured.
func (c *Client) Enabled() bool {
	return c.client != nil
}

// Parse reads a receipt photo and returns the recognized raw items. imageURL
// is the Discord attachment URL; the image itself never touches disk.
func (c *Client) Parse(ctx context.Context, imageURL string) ([]receipt.RawItem, error) {
	req := openai.ChatCompletionRequest{
		Model: openai.GPT4o,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: imageURL,
						},
					},
				},
			},
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return ExtractItems(resp.Choices[0].Message.Content), nil
}
