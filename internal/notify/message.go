package notify

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"
)

// ErrMalformed is returned by Parse for datagrams that are not NOTIFY announcements
var ErrMalformed = errors.New("malformed NOTIFY datagram")

const (
	notifyMethod = "NOTIFY"
	tuneMarker   = "<tune"
)

// Tune describes what a playing box is tuned to
type Tune struct {
	Src     string `json:"src"`
	Channel string `json:"channel,omitempty"`
}

// Message is one parsed NOTIFY announcement
type Message struct {
	// Sender is the IP address the datagram came from
	Sender string `json:"sender"`

	// Tuned is true when the payload carries a tune element
	Tuned bool `json:"tuned"`

	// Raw is the datagram payload as received
	Raw string `json:"-"`

	Type             string `json:"type,omitempty"`
	Filter           string `json:"filter,omitempty"`
	DeviceUUID       string `json:"device_uuid,omitempty"`
	Location         string `json:"location,omitempty"`
	LastUserActivity string `json:"last_user_activity,omitempty"`
	Debug            string `json:"debug,omitempty"`

	// Tune is only set when the XML body could be decoded
	Tune *Tune `json:"tune,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

type nodeBody struct {
	XMLName    xml.Name `xml:"node"`
	Activities struct {
		Tune *struct {
			Src     string `xml:"src,attr"`
			Channel string `xml:"channel,attr"`
		} `xml:"tune"`
	} `xml:"activities"`
}

// Parse decodes a datagram received from sender
func Parse(sender net.Addr, payload []byte) (*Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	br := bufio.NewReader(bytes.NewReader(payload))
	tp := textproto.NewReader(br)

	requestLine, err := tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read request line: %v", ErrMalformed, err)
	}
	fields := strings.Fields(requestLine)
	if len(fields) == 0 || !strings.EqualFold(fields[0], notifyMethod) {
		return nil, fmt.Errorf("%w: unexpected request line %q", ErrMalformed, requestLine)
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: failed to read headers: %v", ErrMalformed, err)
	}

	body, _ := io.ReadAll(br)
	raw := string(payload)

	msg := &Message{
		Sender:           senderIP(sender),
		Tuned:            strings.Contains(raw, tuneMarker),
		Raw:              raw,
		Type:             header.Get("x-type"),
		Filter:           header.Get("x-filter"),
		DeviceUUID:       header.Get("x-device"),
		Location:         header.Get("x-location"),
		LastUserActivity: header.Get("x-lastUserActivity"),
		Debug:            header.Get("x-debug"),
		ReceivedAt:       time.Now(),
	}

	if msg.Tuned {
		msg.Tune = decodeTune(body)
	}

	return msg, nil
}

func decodeTune(body []byte) *Tune {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	var node nodeBody
	if err := xml.Unmarshal(body, &node); err != nil {
		return nil
	}
	if node.Activities.Tune == nil {
		return nil
	}

	return &Tune{
		Src:     node.Activities.Tune.Src,
		Channel: node.Activities.Tune.Channel,
	}
}

func senderIP(addr net.Addr) string {
	switch a := addr.(type) {
	case nil:
		return ""
	case *net.UDPAddr:
		return a.IP.String()
	case *net.IPAddr:
		return a.IP.String()
	}

	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
