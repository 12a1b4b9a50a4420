// Package prompt assembles the system prompt sent with each chat request
// from a response profile, optional user-supplied instructions, and
// optional background context such as resume text.
package prompt

import "strings"

// Profile selects the assistant's response style.
type Profile string

const (
	ProfileGeneral   Profile = "general"
	ProfileCoding    Profile = "coding"
	ProfileInterview Profile = "interview"
	ProfileSales     Profile = "sales"
	ProfileMeeting   Profile = "meeting"
)

// IsValid reports whether p is a recognised profile.
func (p Profile) IsValid() bool {
	switch p {
	case ProfileGeneral, ProfileCoding, ProfileInterview, ProfileSales, ProfileMeeting:
		return true
	}
	return false
}

// DefaultProfile is used when no profile (or an unknown one) is requested.
const DefaultProfile = ProfileGeneral

// profileIntros holds the base instruction per profile. Kept short here;
// the substance of an answer comes from the conversation itself.
var profileIntros = map[Profile]string{
	ProfileGeneral: "You are a capable assistant. Answer directly in markdown. " +
		"Keep responses to a focused medium length and wrap any code in fenced blocks.",
	ProfileCoding: "You are a senior software engineer. Lead with complete, working code " +
		"in fenced blocks, then explain the approach concisely.",
	ProfileInterview: "You are an interview coach. Give professional, ready-to-speak answers. " +
		"For technical questions, provide complete code first, then the talking points.",
	ProfileSales: "You are a sales assistant. Produce persuasive, ready-to-speak scripts " +
		"that address the prospect's stated concern directly.",
	ProfileMeeting: "You are a meeting copilot. Summarise the point being discussed and " +
		"suggest a concise, professional response the user can deliver.",
}

// System builds the system prompt for a session. Unknown profiles fall back
// to [DefaultProfile]. customPrompt and resumeContext are appended as
// labelled sections when non-empty; both are read-only snapshots taken at
// session start.
func System(profile Profile, customPrompt, resumeContext string) string {
	intro, ok := profileIntros[profile]
	if !ok {
		intro = profileIntros[DefaultProfile]
	}

	var sb strings.Builder
	sb.WriteString(intro)

	if custom := strings.TrimSpace(customPrompt); custom != "" {
		sb.WriteString("\n\nAdditional instructions from the user:\n")
		sb.WriteString(custom)
	}
	if resume := strings.TrimSpace(resumeContext); resume != "" {
		sb.WriteString("\n\nBackground on the user (from their resume):\n")
		sb.WriteString(resume)
	}
	return sb.String()
}
