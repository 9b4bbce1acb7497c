package app

import (
	"fmt"
	"strings"
)

// Instructions renders the prompts sent to the completion client for
// platform events.
type Instructions struct {
	DiscordJoinLink string
}

func (i Instructions) Follow(user string) string {
	return fmt.Sprintf("Welcome %s as a new follower! Post some hype in chat for the new follower!", user)
}

func (i Instructions) Subscribe(user string) string {
	return fmt.Sprintf("We got a new subscriber! Send love and thanks to %s!", user)
}

func (i Instructions) Resubscribe(user string, months int) string {
	return fmt.Sprintf("%s resubscribed! They subscribed for a total of %d months! Send love and cheers to %s!", user, months, user)
}

func (i Instructions) VIPAdd(user string) string {
	return fmt.Sprintf("Welcome %s as a VIP member! Give some cheers by writing a limerick about the new VIP!", user)
}

func (i Instructions) AdBreak(seconds int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tell the chat an AD started, it will be over in %d seconds. Give chat a suggestion what to do in the meantime.", seconds)
	if i.DiscordJoinLink != "" {
		fmt.Fprintf(&b, " If nothing else you can invite them to join our Discord server with this link %s", i.DiscordJoinLink)
	}
	b.WriteString(" Remind the chat that they can use their Prime Sub to sub to the channel to avoid ads.")
	return b.String()
}
