package twitch

// Subscription describes one EventSub subscription independent of its transport.
type Subscription struct {
	Type      string
	Version   string
	Condition map[string]string
}

// HomeSubscriptions are the platform events the bot follows on its home channel.
func HomeSubscriptions(broadcasterID, botUserID string) []Subscription {
	broadcaster := map[string]string{"broadcaster_user_id": broadcasterID}
	return []Subscription{
		{Type: TypeFollow, Version: "2", Condition: map[string]string{
			"broadcaster_user_id": broadcasterID,
			"moderator_user_id":   botUserID,
		}},
		{Type: TypeSubscribe, Version: "1", Condition: broadcaster},
		{Type: TypeResubscribe, Version: "1", Condition: broadcaster},
		{Type: TypeVIPAdd, Version: "1", Condition: broadcaster},
		{Type: TypeAdBreak, Version: "1", Condition: broadcaster},
		{Type: TypeRewardRedemption, Version: "1", Condition: broadcaster},
		{Type: TypeStreamOnline, Version: "1", Condition: broadcaster},
		{Type: TypeStreamOffline, Version: "1", Condition: broadcaster},
		{Type: TypeWhisper, Version: "1", Condition: map[string]string{"user_id": botUserID}},
	}
}

// ChatSubscription receives a channel's chat messages as the bot user.
func ChatSubscription(broadcasterID, botUserID string) Subscription {
	return Subscription{Type: TypeChatMessage, Version: "1", Condition: map[string]string{
		"broadcaster_user_id": broadcasterID,
		"user_id":             botUserID,
	}}
}
