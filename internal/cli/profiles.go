package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/shopload/shopload/internal/scenario"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the built-in scenario profiles",
	Long: `List the built-in scenario profiles with their task mix and pacing.
Select profiles for a run with --profile or the "profiles" config key.`,
	Run: func(cmd *cobra.Command, args []string) {
		printProfiles()
	},
}

// printProfiles lists every built-in profile with its weighted tasks.
func printProfiles() {
	nameColor := color.New(color.FgCyan, color.Bold).SprintFunc()
	dimColor := color.New(color.Faint).SprintFunc()

	for _, p := range scenario.AllProfiles() {
		fmt.Printf("%s\n", nameColor(p.Name))
		fmt.Printf("  %s\n", p.Description)
		fmt.Printf("  %s\n", dimColor(fmt.Sprintf("wait between iterations: %s - %s", p.WaitMin, p.WaitMax)))

		total := p.TotalWeight()
		for _, t := range p.Tasks {
			pct := 0.0
			if total > 0 {
				pct = float64(t.Weight) / float64(total) * 100
			}
			fmt.Printf("    %-24s weight %2d (%.0f%%)\n", t.Name, t.Weight, pct)
		}
		fmt.Println()
	}
}
