package finetune

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
)

// jsonlMessage is one chat turn of an exported training record.
type jsonlMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonlRecord struct {
	Messages []jsonlMessage `json:"messages"`
}

// ExportJSONL serializes candidates into the chat fine-tuning format: one
// JSON object per line with system, user and assistant messages.
func ExportJSONL(systemPrompt string, candidates []Candidate) ([]byte, error) {
	var buf bytes.Buffer

	for i := range candidates {
		record := jsonlRecord{
			Messages: []jsonlMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: candidates[i].UserContent},
				{Role: "assistant", Content: candidates[i].AssistantContent},
			},
		}

		line, err := sonic.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize training record: %w", err)
		}

		buf.Write(line)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}
