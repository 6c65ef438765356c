package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/genroute/internal/infra/state"
)

var cooldownCmd = &cobra.Command{
	Use:   "cooldown <provider> <duration>",
	Short: "Manually quarantine a provider",
	Long: `Puts a provider on cooldown for the given duration, e.g. to pull it out
of rotation during an incident. Extend-only semantics apply: an active
cooldown that already ends later is left alone.`,
	Args: cobra.ExactArgs(2),
	RunE: runCooldown,
}

func init() {
	rootCmd.AddCommand(cooldownCmd)
}

func runCooldown(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name := args[0]
	if _, ok := cfg.Providers[name]; !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	d, err := time.ParseDuration(args[1])
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", args[1], err)
	}

	cooldowns := state.NewFileCooldownStore(cfg.State.CooldownFile)
	cooldowns.Set(name, d)

	until, cooling := cooldowns.Get(name)
	if !cooling {
		return fmt.Errorf("cooldown did not take effect")
	}
	fmt.Printf("%s cooling down until %s\n", name, until.Format(time.RFC3339))
	return nil
}
