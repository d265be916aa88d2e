package message

import (
	"fmt"
	"regexp"
)

var templateVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveTemplate expands ${var} placeholders in template against, in
// order, the built-in message variables and then channelMap, sourceMap,
// connectorMap (spec §6 destination Template). Unresolved placeholders are
// left verbatim. Shared by every transport-specific destination connector
// that exposes a templated field (host/port/topic/key/...).
func ResolveTemplate(template string, cm *ConnectorMessage) string {
	return templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := builtinTemplateVar(name, cm); ok {
			return v
		}
		if v, ok := cm.ChannelMap[name]; ok {
			return templateToString(v)
		}
		if v, ok := cm.SourceMap[name]; ok {
			return templateToString(v)
		}
		if v, ok := cm.ConnectorMap[name]; ok {
			return templateToString(v)
		}
		return match
	})
}

func builtinTemplateVar(name string, cm *ConnectorMessage) (string, bool) {
	switch name {
	case "message.encodedData":
		if c, ok := cm.GetContent(ContentEncoded); ok {
			return c.Data, true
		}
	case "message.transformedData":
		if c, ok := cm.GetContent(ContentTransformed); ok {
			return c.Data, true
		}
	case "message.rawData":
		if c, ok := cm.GetContent(ContentRaw); ok {
			return c.Data, true
		}
	}
	return "", false
}

func templateToString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
