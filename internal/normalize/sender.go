// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/bcem/triage/internal/models"
)

// senderField is the tagged union of the shapes the upstream uses for the
// "from" field. It is resolved here and nowhere else.
type senderField interface {
	resolve() models.Sender
}

// stringEncodedSender is a PowerShell-style object dump that leaked into
// the data, "@{name=Nina Davis; address=nina.davis@example.com}", or a
// plain RFC 5322 address.
type stringEncodedSender string

// structuredSender covers both {name, address} and the Graph form
// {emailAddress: {name, address}}.
type structuredSender struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	EmailAddress *struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

var senderPattern = regexp.MustCompile(`name=([^;}]*);\s*address=([^;}]*)`)

func (s stringEncodedSender) resolve() models.Sender {
	if m := senderPattern.FindStringSubmatch(string(s)); m != nil {
		return withDefaults(m[1], m[2])
	}
	// Plain header values: "nina@example.com" or "Nina Davis <nina@example.com>".
	if addr, err := mail.ParseAddress(string(s)); err == nil {
		return withDefaults(addr.Name, addr.Address)
	}
	return withDefaults("", "")
}

func (s structuredSender) resolve() models.Sender {
	if s.EmailAddress != nil {
		return withDefaults(s.EmailAddress.Name, s.EmailAddress.Address)
	}
	address := s.Address
	if address == "" {
		address = s.Email
	}
	return withDefaults(s.Name, address)
}

// Sender resolves a raw "from" value into a models.Sender. Anything that is
// neither a recognised string nor an object yields the default sender.
func Sender(raw json.RawMessage) models.Sender {
	field := decodeSender(raw)
	if field == nil {
		return withDefaults("", "")
	}
	return field.resolve()
}

func decodeSender(raw json.RawMessage) senderField {
	if isObject(raw) {
		var s structuredSender
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return s
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return stringEncodedSender(s)
}

func withDefaults(name, address string) models.Sender {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	if name == "" {
		name = models.DefaultSenderName
	}
	if address == "" {
		address = models.DefaultSenderEmail
	}
	return models.Sender{Name: name, Email: address}
}
