package train

import (
	"fmt"

	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/provider"
	"github.com/drewdunne/releasetrain/internal/provider/providertest"
)

const baseChangelog = `# Changelog

## v0

### Others

- Initial release [#1], by [@alice]

[#1]: https://github.com/acme/widgets/pull/1

[@alice]: https://github.com/alice
`

func newHost() *providertest.Host {
	return providertest.New("acme", "widgets", "master", "abc123", map[string]string{
		"CHANGELOG.md": baseChangelog,
	})
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Repository.Owner = "acme"
	cfg.Repository.Name = "widgets"
	return cfg
}

// proposal builds a ready pull request whose description carries a changelog excerpt.
func proposal(number int, author, text string, labels ...string) provider.PullRequest {
	body := "Some context.\n"
	if text != "" {
		body += "\n### Changelog\n\n" + text + "\n"
	}
	return provider.PullRequest{
		Number:  number,
		Title:   fmt.Sprintf("Proposal %d", number),
		Body:    body,
		HeadRef: fmt.Sprintf("feature-%d", number),
		HeadSHA: fmt.Sprintf("sha%d", number),
		BaseRef: "master",
		Labels:  append([]string{"c:ready"}, labels...),
		Author:  author,
	}
}

func numbers(prs []provider.PullRequest) []int {
	out := []int{}
	for _, pr := range prs {
		out = append(out, pr.Number)
	}
	return out
}
