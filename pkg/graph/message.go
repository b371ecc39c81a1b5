package graph

import (
	"encoding/json"
	"fmt"

	"github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/pipeline"
)

// selectFields limits the listing to the fields the aggregator consumes.
const selectFields = "subject,sender,toRecipients,ccRecipients,bccRecipients,receivedDateTime"

// Wire types for the Graph messages listing.

type listResponse struct {
	Value []rawMessage `json:"value"`
}

type rawMessage struct {
	Subject          *string     `json:"subject"`
	Sender           *recipient  `json:"sender"`
	ToRecipients     []recipient `json:"toRecipients"`
	CcRecipients     []recipient `json:"ccRecipients"`
	BccRecipients    []recipient `json:"bccRecipients"`
	ReceivedDateTime string      `json:"receivedDateTime"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type folderResponse struct {
	TotalItemCount int `json:"totalItemCount"`
}

// decodePage parses one raw listing payload into pipeline messages.
func decodePage(data []byte) ([]pipeline.Message, error) {
	var page listResponse
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode message page: %w", err)
	}

	msgs := make([]pipeline.Message, 0, len(page.Value))
	for _, raw := range page.Value {
		msgs = append(msgs, raw.toMessage())
	}
	return msgs, nil
}

// toMessage normalizes one raw Graph message.
func (m rawMessage) toMessage() pipeline.Message {
	msg := pipeline.Message{
		Subject:  "No Subject",
		From:     "Unknown",
		To:       addresses(m.ToRecipients),
		Cc:       addresses(m.CcRecipients),
		Bcc:      addresses(m.BccRecipients),
		Received: m.ReceivedDateTime,
		Names:    make(map[string]string),
	}

	if m.Subject != nil && *m.Subject != "" {
		msg.Subject = *m.Subject
	}
	if m.Sender != nil && m.Sender.EmailAddress.Address != "" {
		msg.From = m.Sender.EmailAddress.Address
	}

	// Union of address -> display name across all roles.
	for _, group := range [][]recipient{m.ToRecipients, m.CcRecipients, m.BccRecipients} {
		for _, r := range group {
			if r.EmailAddress.Address != "" {
				msg.Names[r.EmailAddress.Address] = r.EmailAddress.Name
			}
		}
	}

	return msg
}

func addresses(recipients []recipient) []string {
	if len(recipients) == 0 {
		return nil
	}
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.EmailAddress.Address)
	}
	return out
}
