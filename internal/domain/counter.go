package domain

// TokenCounter estimates token counts locally, without a server round
// trip. Estimates feed preflight context-window checks and are advisory;
// authoritative counts arrive with the completed response.
type TokenCounter interface {
	CountText(text string) int
	CountPrompt(p Prompt) int
}
