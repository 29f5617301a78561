package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"squeeze/internal/encoder"
	"squeeze/internal/logging"
)

func newEncodersCommand(cctx *commandContext) *cobra.Command {
	var runProbe bool

	cmd := &cobra.Command{
		Use:   "encoders",
		Short: "List candidate encoder profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(encoder.Registry()))
			if runProbe {
				runner := encoder.NewFFmpeg(cfg.Encoder.FFmpeg, logging.NewNop())
				for _, profile := range encoder.Registry() {
					status := "ok"
					if err := runner.ProbeProfile(cmd.Context(), profile); err != nil {
						status = "unavailable"
					}
					rows = append(rows, []string{profile.ID, profile.Label, status})
				}
			} else {
				for _, profile := range encoder.Registry() {
					rows = append(rows, []string{profile.ID, profile.Label, strings.Join(profile.Args, " ")})
				}
			}

			third := "Arguments"
			if runProbe {
				third = "Status"
			}
			fmt.Println(renderTable(
				[]string{"ID", "Label", third},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&runProbe, "probe", false, "Run the capability probe for each profile")
	return cmd
}
