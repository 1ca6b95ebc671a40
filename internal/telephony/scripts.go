package telephony

import (
	"fmt"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

const (
	voice    = "Polly.Aditi"
	language = "hi-IN"
)

// SpellOut separates every character so the voice reads ids digit by digit.
func SpellOut(id string) string {
	return strings.Join(strings.Split(id, ""), " ")
}

// RejectionScript is played to the citizen when an official rejects a complaint.
func RejectionScript(id, reason string) (string, error) {
	msg := fmt.Sprintf(
		"नमस्ते। मैं ऑफिसर वाणी बोल रही हूँ। आपकी शिकायत संख्या %s को अस्वीकार कर दिया गया है। इसका कारण है: %s। कृपया दोबारा शिकायत दर्ज करें। असुविधा के लिए खेद है।",
		SpellOut(id), reason)
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: msg, Voice: voice, Language: language},
	})
}

// AuditPromptScript asks a resident to confirm a department's resolution
// claim and collects one keypress, posted to resultURL. If nothing is
// pressed the call is redirected to resultURL without digits.
func AuditPromptScript(dept, loc, count, resultURL string) (string, error) {
	msg := fmt.Sprintf(
		"नमस्ते। यह दिल्ली सुदर्शन से एक सेवा सत्यापन कॉल है। "+
			"Hello. This is a citizen assurance call from Delhi Sudarshan. "+
			"The %s department claims to have resolved %s issues in %s. "+
			"As a resident of this area, we request your confirmation. "+
			"Are you satisfied with the resolution? Press 1 for Yes. Press 2 for No.",
		dept, count, loc)

	gather := &twiml.VoiceGather{
		Action:    resultURL,
		Method:    "POST",
		NumDigits: "1",
		Timeout:   "8",
		InnerElements: []twiml.Element{
			&twiml.VoiceSay{Message: msg, Voice: voice, Language: language},
		},
	}
	return twiml.Voice([]twiml.Element{
		gather,
		&twiml.VoiceRedirect{Url: resultURL, Method: "POST"},
	})
}

// ThanksScript closes an audit call once the keypress has been recorded.
func ThanksScript() (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: "धन्यवाद। Thank you for your feedback.", Voice: voice, Language: language},
		&twiml.VoiceHangup{},
	})
}
