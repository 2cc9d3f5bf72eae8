package insights

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/f-sync/followdiff/internal/reconcile"
)

const promptTemplateName = "insights"

// promptTemplateText is the fixed prompt sent to the generative model.
const promptTemplateText = `You are a social media expert and witty data analyst.
Analyze the following Instagram account statistics and provide a 3-paragraph summary.

The tone should be professional but slightly cheeky/witty if the stats are unusual.

Stats:
- Following: {{.FollowingCount}} people
- Followers: {{.FollowersCount}} people
- Not Following Back: {{.NotFollowingBackCount}} (People I follow, but they don't follow me)
- Fans: {{.FansCount}} (People who follow me, but I don't follow them)
- Mutuals: {{.MutualCount}}
- Follow Ratio: {{printf "%.2f" .FollowRatio}}

1. First paragraph: Analyze the "Health" of this account based on the ratio and mutuals.
2. Second paragraph: Comment on the "Not Following Back" count. Is it high? What does that imply? (e.g., chasing celebrities, bots, or just unrequited friendship).
3. Third paragraph: Give one piece of actionable advice to improve their engagement or clean up their list.

Format with markdown.
`

var promptTemplate = template.Must(template.New(promptTemplateName).Parse(promptTemplateText))

// BuildPrompt renders the model prompt for stats.
func BuildPrompt(stats reconcile.Stats) (string, error) {
	var buffer bytes.Buffer
	if err := promptTemplate.Execute(&buffer, stats); err != nil {
		return "", fmt.Errorf("prompt template execute: %w", err)
	}
	return buffer.String(), nil
}
