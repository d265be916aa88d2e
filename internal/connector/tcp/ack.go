package tcp

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AckCode is the MSA-1 acknowledgment code synthesized for AUTO response
// mode (spec §4.3, §6).
type AckCode string

const (
	AckApplicationAccept AckCode = "AA"
	AckApplicationError  AckCode = "AE"
	AckApplicationReject AckCode = "AR"
)

var controlIDPattern = regexp.MustCompile(`\rMSH\|[^\r]*\r`)

// controlIDFromHL7 extracts MSH-10 (the message control ID) from a raw
// HL7v2 message so the synthesized ACK can echo it back in MSA-2.
func controlIDFromHL7(raw string) string {
	raw = strings.TrimLeft(raw, "\r\n")
	nl := strings.IndexAny(raw, "\r\n")
	var msh string
	if nl >= 0 {
		msh = raw[:nl]
	} else {
		msh = raw
	}
	if !strings.HasPrefix(msh, "MSH") {
		return ""
	}
	if len(msh) < 4 {
		return ""
	}
	sep := msh[3] // field separator, normally '|'
	fields := strings.Split(msh, string(sep))
	// MSH-10 is fields[9] given MSH-1 is the separator itself (fields[0]=="MSH").
	if len(fields) > 9 {
		return fields[9]
	}
	return ""
}

// BuildAck synthesizes a minimal HL7v2 ACK for AUTO response mode (spec
// §6): "MSH|^~\&|MIRTH|MIRTH|MIRTH|MIRTH|<ts>||ACK|<controlId>|P|2.5\r
// MSA|<code>|<controlId>|\r".
func BuildAck(raw string, code AckCode) string {
	controlID := controlIDFromHL7(raw)
	ts := time.Now().Format("20060102150405")
	var b strings.Builder
	fmt.Fprintf(&b, "MSH|^~\\&|MIRTH|MIRTH|MIRTH|MIRTH|%s||ACK|%s|P|2.5\r", ts, controlID)
	fmt.Fprintf(&b, "MSA|%s|%s|\r", code, controlID)
	return b.String()
}

// AckCodeForStatus maps a dispatch outcome to the MSA-1 code: errors
// during processing/filtering yield AE, a dispatch-level failure yields
// AR, and the default success path yields AA (spec §6).
func AckCodeForStatus(processingFailed, dispatchRejected bool) AckCode {
	switch {
	case dispatchRejected:
		return AckApplicationReject
	case processingFailed:
		return AckApplicationError
	default:
		return AckApplicationAccept
	}
}
