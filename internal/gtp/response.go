package gtp

import (
	"fmt"
	"strings"
)

// Response is a parsed GTP reply frame: a tagged success/failure outcome
// with an optional echoed identifier and either a payload (success) or
// an error message (failure), never both.
type Response struct {
	Success bool
	HasID   bool
	ID      string
	Payload string
	Err     string
}

// ParseResponse parses one response frame out of raw, which may be
// preceded by engine "chatter" lines emitted outside protocol framing.
// If expectedID is non-nil, the response's identifier (or lack of one)
// must match it exactly or ErrIdentifierMismatch is returned.
func ParseResponse(raw string, expectedID *string) (Response, error) {
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	statusIdx := -1
	for i, l := range lines {
		idx := firstNonSpaceIndex(l)
		if idx < 0 {
			continue
		}
		if c := l[idx]; c == '=' || c == '?' {
			statusIdx = i
			break
		}
	}
	if statusIdx == -1 {
		chatter := strings.TrimRight(strings.Join(lines, "\n"), "\n")
		return Response{}, fmt.Errorf("%w: no status line found in response; chatter: %q", ErrMalformedResponse, chatter)
	}

	success, hasID, id, firstPayload := parseStatusLine(lines[statusIdx])

	payloadLines := []string{firstPayload}
	for i := statusIdx + 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			break
		}
		payloadLines = append(payloadLines, lines[i])
	}
	joined := strings.Join(payloadLines, "\n")

	if expectedID != nil && (!hasID || id != *expectedID) {
		return Response{}, fmt.Errorf("%w: expected identifier %q, got present=%v id=%q", ErrIdentifierMismatch, *expectedID, hasID, id)
	}

	resp := Response{Success: success, HasID: hasID, ID: id}
	if success {
		resp.Payload = joined
	} else {
		resp.Err = joined
	}
	return resp, nil
}

// parseStatusLine splits a status line (already known to start, after
// optional leading whitespace, with '=' or '?') into its components per
// §4.A step 4: status char, optional whitespace, optional digit-only
// identifier, then the first payload line (leading whitespace after the
// identifier stripped exactly once).
func parseStatusLine(line string) (success bool, hasID bool, id string, payload string) {
	i := firstNonSpaceIndex(line)
	if i < 0 {
		i = 0
	}
	success = line[i] == '='
	rest := line[i+1:]

	j := 0
	for j < len(rest) && isASCIISpace(rune(rest[j])) {
		j++
	}
	afterLeadingWS := rest[j:]

	k := 0
	for k < len(afterLeadingWS) && afterLeadingWS[k] >= '0' && afterLeadingWS[k] <= '9' {
		k++
	}
	if k > 0 && (k == len(afterLeadingWS) || isASCIISpace(rune(afterLeadingWS[k]))) {
		hasID = true
		id = afterLeadingWS[:k]
		remainder := afterLeadingWS[k:]
		m := 0
		for m < len(remainder) && isASCIISpace(rune(remainder[m])) {
			m++
		}
		payload = remainder[m:]
		return
	}

	payload = afterLeadingWS
	return
}

func firstNonSpaceIndex(s string) int {
	for i := 0; i < len(s); i++ {
		if !isASCIISpace(rune(s[i])) {
			return i
		}
	}
	return -1
}

// BuildFrame assembles a raw response frame (status line, continuation
// lines, terminating blank line) the way an engine would emit it. It is
// the inverse of ParseResponse and is used by tests and by the scripted
// transport test double.
func BuildFrame(success bool, id *string, payload string) string {
	statusChar := byte('?')
	if success {
		statusChar = '='
	}
	lines := strings.Split(payload, "\n")

	var b strings.Builder
	b.WriteByte(statusChar)
	if id != nil {
		b.WriteByte(' ')
		b.WriteString(*id)
	}
	if lines[0] != "" {
		b.WriteByte(' ')
		b.WriteString(lines[0])
	}
	b.WriteByte('\n')
	for _, l := range lines[1:] {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// BuildSuccessFrame is BuildFrame(true, id, payload).
func BuildSuccessFrame(id *string, payload string) string {
	return BuildFrame(true, id, payload)
}

// BuildFailureFrame is BuildFrame(false, id, message).
func BuildFailureFrame(id *string, message string) string {
	return BuildFrame(false, id, message)
}
