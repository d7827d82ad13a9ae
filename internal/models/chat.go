package models

// Chat is a group or channel the bot is a member of, and so a place polls
// can be sent to.
type Chat struct {
	ID      string `json:"chat_id"`
	Title   string `json:"title"`
	IsGroup bool   `json:"is_group"`
}
