package imapmail

import (
	"bytes"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// ExtractText pulls a searchable text body out of a raw RFC 822 message.
// text/plain parts win over text/html; anything unparseable falls back to
// the raw bytes so a code buried in a malformed message is still seen.
func ExtractText(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}

	var html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := header.ContentType()
		if err != nil {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch strings.ToLower(contentType) {
		case "text/plain":
			return string(body)
		case "text/html":
			if html == "" {
				html = string(body)
			}
		}
	}
	if html != "" {
		return html
	}
	return string(raw)
}
