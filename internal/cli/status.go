package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/genroute/internal/infra/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active cooldowns and rotation cursors",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cooldowns := state.NewFileCooldownStore(cfg.State.CooldownFile)
	rotation := state.NewFileRotationStore(cfg.State.RotationFile)

	providers := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	fmt.Println("Providers:")
	for _, name := range providers {
		if until, cooling := cooldowns.Get(name); cooling {
			fmt.Printf("  %-20s cooling down until %s (%s remaining)\n",
				name, until.Format(time.RFC3339), time.Until(until).Round(time.Second))
		} else {
			fmt.Printf("  %-20s available\n", name)
		}
	}

	tiers := make([]string, 0, len(cfg.Tiers))
	for name := range cfg.Tiers {
		tiers = append(tiers, name)
	}
	sort.Strings(tiers)

	fmt.Println("Tiers:")
	for _, tier := range tiers {
		keys := cfg.Tiers[tier]
		idx := rotation.StartIndex(tier) % len(keys)
		fmt.Printf("  %-20s next candidate %s (cursor %d of %d)\n", tier, keys[idx], idx, len(keys))
	}

	return nil
}
