package rate

// sendKey shares the user hash tag with the store keys so a user's
// counters land in the same cluster slot.
func (l *Limiter) sendKey(userID, channel string) string {
	return l.prefix + ":{" + userID + "}:rs:" + channel
}
