package query

import (
	"strconv"
	"strings"
)

// Escape encodes an untrusted string for embedding in a command line.
// Backslash must go first so inserted escapes are not re-escaped.
func Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, " ", `\s`)
	s = strings.ReplaceAll(s, "/", `\/`)
	return s
}

// Unescape reverses Escape plus the remaining escape sequences the
// console emits in record values. Unknown sequences pass through
// verbatim.
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 's':
			b.WriteByte(' ')
		case '/':
			b.WriteByte('/')
		case 'p':
			b.WriteByte('|')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Status is the terminal line of every reply.
type Status struct {
	ID      int
	Message string
}

// decodeStatus scans a reply for its status line. A zero id returns the
// full reply content for further row decoding; any other id is the
// terminal outcome of the request.
func decodeStatus(content string) (string, error) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "error ") {
			continue
		}
		status, err := parseStatusLine(line)
		if err != nil {
			return "", err
		}
		if status.ID == 0 {
			return content, nil
		}
		return "", &Error{Code: status.ID, Message: status.Message}
	}
	return "", statusNotFoundError(content)
}

func parseStatusLine(line string) (Status, error) {
	rest := strings.TrimPrefix(line, "error ")
	var status Status
	seenID := false
	for _, token := range strings.Fields(rest) {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		switch key {
		case "id":
			id, err := strconv.Atoi(value)
			if err != nil {
				return Status{}, parseError("id", value, err)
			}
			status.ID = id
			seenID = true
		case "msg":
			status.Message = Unescape(value)
		}
	}
	if !seenID {
		return Status{}, statusNotFoundError(line)
	}
	return status, nil
}

// decodeRecords extracts the data rows preceding the status line. The
// second return distinguishes "reply had no data line" from "data line
// present but empty": some commands never legitimately omit the line,
// and those callers escalate absence as a harder failure.
func decodeRecords(content string) ([]Record, bool, error) {
	body, err := decodeStatus(content)
	if err != nil {
		return nil, false, err
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "error ") {
			continue
		}
		segments := strings.Split(trimmed, "|")
		rows := make([]Record, 0, len(segments))
		for _, segment := range segments {
			rows = append(rows, parseRecord(segment))
		}
		return rows, true, nil
	}
	return nil, false, nil
}
