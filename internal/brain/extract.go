package brain

import (
	"encoding/json"
	"fmt"
)

// Instruction is the structured action parsed from a model reply. Exactly
// one of Skip, Tool or Script is expected to be set.
type Instruction struct {
	Skip   bool           `json:"skip,omitempty"`
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Script string         `json:"script,omitempty"`
}

// ExtractJSON returns the first balanced {...} span in the reply, tolerating
// fenced or prefixed output around it.
func ExtractJSON(reply string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(reply); i++ {
		c := reply[i]
		if start == -1 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return reply[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("no balanced JSON object in reply")
}

// ParseInstruction extracts and decodes the action instruction from a reply.
func ParseInstruction(reply string) (Instruction, error) {
	raw, err := ExtractJSON(reply)
	if err != nil {
		return Instruction{}, err
	}
	var instr Instruction
	if err := json.Unmarshal([]byte(raw), &instr); err != nil {
		return Instruction{}, fmt.Errorf("decode instruction: %w", err)
	}
	return instr, nil
}
