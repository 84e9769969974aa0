package eventsource

import (
	"strconv"
	"strings"
	"time"
)

// publication is the concrete event record produced by the parser. It is immutable
// once dispatched.
type publication struct {
	id, event, data string
	lastEventID     string
	retry           time.Duration
	hasID, hasRetry bool
}

func (p *publication) Id() string          { return p.id }
func (p *publication) Event() string       { return p.event }
func (p *publication) Data() string        { return p.data }
func (p *publication) LastEventID() string { return p.lastEventID }

// Parser is an incremental decoder for the text/event-stream wire format. It is fed
// raw chunks of the response body, in any sizes and at any boundary positions, and
// produces the same sequence of events as if the whole body had been fed at once.
//
// Parser does no I/O and holds no connection state; Stream creates a fresh one for
// each connection. It is not safe for concurrent use.
type Parser struct {
	lineBuf []byte
	sawCR   bool

	// fields of the event currently being assembled
	event    string
	data     []string
	id       string
	hasID    bool
	retry    time.Duration
	hasRetry bool
}

// NewParser creates a Parser with no buffered input.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes the next chunk of the byte stream and returns the events dispatched
// by it, in order. A line terminator may be "\n", "\r\n", or a bare "\r"; a line
// left incomplete by this chunk is buffered until a later chunk completes it.
func (p *Parser) Feed(chunk []byte) []Event {
	var events []Event
	for _, b := range chunk {
		if p.sawCR {
			p.sawCR = false
			if b == '\n' {
				// second byte of a CRLF; the line was already processed at the CR
				continue
			}
		}
		switch b {
		case '\r':
			p.sawCR = true
			events = p.endOfLine(events)
		case '\n':
			events = p.endOfLine(events)
		default:
			p.lineBuf = append(p.lineBuf, b)
		}
	}
	return events
}

func (p *Parser) endOfLine(events []Event) []Event {
	line := string(p.lineBuf)
	p.lineBuf = p.lineBuf[:0]
	if line == "" {
		return append(events, p.dispatch())
	}
	p.processField(line)
	return events
}

// processField handles one complete, non-blank line. Comment lines and anomalous
// field values (unknown names, NUL in an id, non-numeric retry) are ignored and
// never abort parsing.
func (p *Parser) processField(line string) {
	if strings.HasPrefix(line, ":") {
		return
	}
	field, value := line, ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		field = line[:i]
		// at most one leading space is stripped from the value
		value = strings.TrimPrefix(line[i+1:], " ")
	}
	switch field {
	case "event":
		p.event = value
	case "data":
		p.data = append(p.data, value)
	case "id":
		if !strings.Contains(value, "\x00") {
			p.id = value
			p.hasID = true
		}
	case "retry":
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
			p.retry = time.Duration(ms) * time.Millisecond
			p.hasRetry = true
		}
	}
}

// dispatch constructs an event from the pending fields and clears them. A blank line
// always dispatches, even if no fields were seen since the last one.
func (p *Parser) dispatch() Event {
	pub := &publication{
		id:       p.id,
		hasID:    p.hasID,
		event:    p.event,
		data:     strings.Join(p.data, "\n"),
		retry:    p.retry,
		hasRetry: p.hasRetry,
	}
	if pub.event == "" {
		pub.event = "message"
	}
	p.event = ""
	p.data = nil
	p.id = ""
	p.hasID = false
	p.retry = 0
	p.hasRetry = false
	return pub
}
