package tcp

import "github.com/corvushealth/engine/internal/message"

// resolveTemplate expands ${var} placeholders in the TCP dispatcher's host,
// port, and localAddr/localPort config fields (spec §6 destination
// Template).
func resolveTemplate(template string, cm *message.ConnectorMessage) string {
	return message.ResolveTemplate(template, cm)
}
