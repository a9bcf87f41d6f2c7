package aiscreen

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseMethod records which parser accepted the response
type ParseMethod string

const (
	ParsedJSON     ParseMethod = "json"
	ParsedRepaired ParseMethod = "json_repaired"
	ParsedText     ParseMethod = "text"
	ParsedNone     ParseMethod = "none"
)

const defaultTextConfidence = 50

// Proposal is one candidate exactly as the completion service proposed it
type Proposal struct {
	Code       string
	Name       string
	Confidence float64
	Reason     string
	Signals    []string
}

// looseString accepts a JSON string or number ("005930" or 5930)
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(string(data))
	return nil
}

// looseNumber accepts a JSON number or a numeric string ("85", "85%")
type looseNumber float64

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = looseNumber(v)
	return nil
}

type wireCandidate struct {
	Code       looseString `json:"code"`
	Name       looseString `json:"name"`
	Confidence looseNumber `json:"confidence"`
	Reason     string      `json:"reason"`
	Signals    []string    `json:"signals"`
}

type wireEnvelope struct {
	Candidates     []wireCandidate `json:"candidates"`
	SelectedStocks []wireCandidate `json:"selected_stocks"`
	Stocks         []wireCandidate `json:"stocks"`
}

// Parse extracts candidate proposals from a completion response.
// Order: strict JSON (markdown fences tolerated), repaired JSON, then
// pipe-delimited lines. An unparsable response yields no proposals.
func Parse(response string) ([]Proposal, ParseMethod) {
	body := extractJSON(response)
	if body != "" {
		if list, ok := decodeCandidates(body); ok {
			return list, ParsedJSON
		}
		if repaired, err := jsonrepair.JSONRepair(body); err == nil {
			if list, ok := decodeCandidates(repaired); ok {
				return list, ParsedRepaired
			}
		}
	}

	if list := parseText(response); len(list) > 0 {
		return list, ParsedText
	}
	return nil, ParsedNone
}

// extractJSON returns the JSON payload of a response, unwrapping ``` fences
func extractJSON(response string) string {
	s := strings.TrimSpace(response)

	if start := strings.Index(s, "```"); start >= 0 {
		rest := s[start+3:]
		// 언어 태그 (```json) 건너뛰기
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			return s[start : end+1]
		}
	}
	return ""
}

func decodeCandidates(body string) ([]Proposal, bool) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "[") {
		var list []wireCandidate
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, false
		}
		return toProposals(list), true
	}

	var env wireEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, false
	}
	switch {
	case len(env.Candidates) > 0:
		return toProposals(env.Candidates), true
	case len(env.SelectedStocks) > 0:
		return toProposals(env.SelectedStocks), true
	default:
		return toProposals(env.Stocks), true
	}
}

func toProposals(list []wireCandidate) []Proposal {
	out := make([]Proposal, 0, len(list))
	for _, c := range list {
		out = append(out, Proposal{
			Code:       strings.TrimSpace(string(c.Code)),
			Name:       strings.TrimSpace(string(c.Name)),
			Confidence: float64(c.Confidence),
			Reason:     strings.TrimSpace(c.Reason),
			Signals:    c.Signals,
		})
	}
	return out
}

// parseText reads "code|name|confidence|reason" lines.
// Non-integer confidence falls back to 50.
func parseText(response string) []Proposal {
	var out []Proposal
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "|") || strings.HasPrefix(line, "#") {
			continue
		}
		// markdown 표 형식 (| a | b |)
		line = strings.Trim(line, "|")

		parts := strings.Split(line, "|")
		if len(parts) < 3 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		confidence := defaultTextConfidence
		if v, err := strconv.Atoi(parts[2]); err == nil && v >= 0 {
			confidence = v
		}
		reason := "Selected by AI"
		if len(parts) > 3 && parts[3] != "" {
			reason = parts[3]
		}

		out = append(out, Proposal{
			Code:       parts[0],
			Name:       parts[1],
			Confidence: float64(confidence),
			Reason:     reason,
		})
	}
	return out
}
