package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/torcorrelate/internal/api"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/report"
)

// NewProfilesCmd creates the profiles command.
func NewProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles [name]",
		Short: "List weight profiles or show one",
		Long: `Profiles lists the preset weight profiles followed by the custom profiles
defined in the configuration file. The profile selected by the configuration
is marked with '*'.

Given a name, the command shows that profile. A custom profile with the same
name as a preset takes precedence, as it does for 'analyze --profile'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProfilesCmd,
	}
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

// runProfilesCmd executes the profiles command.
func runProfilesCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	newLogger(cmd, cfg.Verbose)

	active, err := cfg.ResolveProfile()
	if err != nil {
		return err
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		cfg.Profile = args[0]
		p, err := cfg.ResolveProfile()
		if err != nil {
			return err
		}
		if asJSON {
			_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(p)
			return err
		}
		return writeProfile(out, p, p.ID == active.ID)
	}

	profiles := make([]model.WeightProfile, 0, len(model.PredefinedTypes))
	for _, t := range model.PredefinedTypes {
		p, err := model.PredefinedProfile(t)
		if err != nil {
			return err
		}
		profiles = append(profiles, p)
	}
	if cfg.File != nil {
		custom, err := cfg.File.CustomProfiles()
		if err != nil {
			return err
		}
		profiles = append(profiles, custom...)
	}

	if asJSON {
		resp := api.ProfilesResponse{Profiles: profiles, Count: len(profiles), Active: active.ID}
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(resp)
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTYPE\tTIME\tVOLUME\tPATTERN\tNAME")
	for _, p := range profiles {
		mark := ""
		if p.ID == active.ID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
			mark, p.ID, p.Type, p.TimeWeight, p.VolumeWeight, p.PatternWeight, p.Name)
	}
	return tw.Flush()
}

// writeProfile prints a single profile.
func writeProfile(out io.Writer, p model.WeightProfile, active bool) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", p.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", p.DisplayName())
	fmt.Fprintf(tw, "Type:\t%s\n", p.Type)
	fmt.Fprintf(tw, "Time weight:\t%.2f\n", p.TimeWeight)
	fmt.Fprintf(tw, "Volume weight:\t%.2f\n", p.VolumeWeight)
	fmt.Fprintf(tw, "Pattern weight:\t%.2f\n", p.PatternWeight)
	if p.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", p.Description)
	}
	if p.CaseID != "" {
		fmt.Fprintf(tw, "Case:\t%s\n", p.CaseID)
	}
	if p.CreatedBy != "" {
		fmt.Fprintf(tw, "Created by:\t%s\n", p.CreatedBy)
	}
	fmt.Fprintf(tw, "Active:\t%t\n", active)
	return tw.Flush()
}
