/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"tradebot/pkg/config"
	"tradebot/pkg/memprofile"
)

var profileLimitMB int

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the memory profile for the configured budget",
	Long:  "Resolves which memory-dependent features are enabled for MEMORY_LIMIT_MB and the requested toggles, and the cache and pool sizes that follow.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("limit") {
			cfg.Memory.LimitMB = profileLimitMB
		}

		profile := memprofile.FromConfig(cfg.Memory, operatorLogger())
		_, err = io.WriteString(cmd.OutOrStdout(), renderProfile(profile, cfg.Memory))
		return err
	},
}

func init() {
	profileCmd.Flags().IntVar(&profileLimitMB, "limit", 0, "memory budget in MB, overrides MEMORY_LIMIT_MB")
	rootCmd.AddCommand(profileCmd)
}

func renderProfile(profile memprofile.Profile, requested config.MemoryConfig) string {
	return renderReport("Memory profile", []field{
		{Key: "limit", Value: strconv.Itoa(profile.LimitMB) + " MB"},
		{Key: "render preset", Value: strconv.FormatBool(requested.RenderPreset)},
		{Key: "intelligent cache", Value: gated(profile.IntelligentCache, requested.IntelligentMemory), Warn: requested.IntelligentMemory && !profile.IntelligentCache},
		{Key: "deep features", Value: gated(profile.DeepFeatures, requested.DeepLearning), Warn: requested.DeepLearning && !profile.DeepFeatures},
		{Key: "advanced cache", Value: strconv.FormatBool(profile.AdvancedCache)},
		{Key: "cache entries", Value: strconv.Itoa(profile.CacheEntries)},
		{Key: "db pool size", Value: strconv.Itoa(profile.PoolSize)},
	})
}

func gated(enabled, requested bool) string {
	switch {
	case enabled:
		return "on"
	case requested:
		return "off (budget too small)"
	default:
		return "off"
	}
}
