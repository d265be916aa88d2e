package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvushealth/engine/internal/message"
)

func TestResolveTemplatePrefersBuiltins(t *testing.T) {
	cm := message.NewConnectorMessage("chan-1", 1, 1)
	cm.SetContent(message.ContentEncoded, "ENCODED-BYTES", "HL7V2", false)
	cm.ChannelMap["patientId"] = "12345"
	cm.SourceMap["facility"] = "GENERAL"

	out := resolveTemplate("${message.encodedData}|${patientId}|${facility}|${missing}", cm)
	assert.Equal(t, "ENCODED-BYTES|12345|GENERAL|${missing}", out)
}

func TestResolveTemplateFallsBackThroughMaps(t *testing.T) {
	cm := message.NewConnectorMessage("chan-1", 1, 1)
	cm.ConnectorMap["retryCount"] = 3

	out := resolveTemplate("attempt=${retryCount}", cm)
	assert.Equal(t, "attempt=3", out)
}
