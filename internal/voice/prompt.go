package voice

import (
	"fmt"
	"strings"
)

// DefaultContactName is used when no record names the person on the line.
const DefaultContactName = "there"

const systemPromptTemplate = `You are a friendly phone assistant speaking with %s on a live call.
Keep every reply to one or two short spoken sentences with no lists, markdown or emoji.
Greet the person by name when you open the call.
If the person asks to be called back later, call schedule_callback with the delay in minutes from now.
If the person wants to stop or the conversation is finished, call end_call.
Use lookup_contact when you need the details on file for this person.
Never invent facts about the person that the tools did not return.`

// SystemPrompt personalises the conversation prompt for one contact.
func SystemPrompt(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultContactName
	}
	return fmt.Sprintf(systemPromptTemplate, name)
}

const (
	// AtCapacityMessage is spoken when the live-session cap is reached.
	AtCapacityMessage = "Sorry, all of our lines are busy right now. We will call you back soon. Goodbye!"

	// TroubleMessage is spoken when the model cannot produce a reply.
	TroubleMessage = "Sorry, I'm having a little trouble right now. Could you say that again?"
)
